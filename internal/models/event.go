// Package models - engine events and user alerts
package models

import "time"

// EventType names an engine event.
type EventType string

const (
	EventSnipeExecuted     EventType = "snipeExecuted"
	EventSnipeFailed       EventType = "snipeFailed"
	EventCopyTradeExecuted EventType = "copyTradeExecuted"
	EventCopyTradeFailed   EventType = "copyTradeFailed"
	EventCopyTradeSkipped  EventType = "copyTradeSkipped"
)

// Event is published by the engines after a trade resolves.
type Event struct {
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// AlertKind classifies a user notification.
type AlertKind string

const (
	AlertInfo    AlertKind = "info"
	AlertSuccess AlertKind = "success"
	AlertWarning AlertKind = "warning"
	AlertError   AlertKind = "error"
)

// Alert is a notification kept in a user's inbox.
type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      AlertKind `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// NotificationPreferences selects the external channels for a user.
type NotificationPreferences struct {
	UserID         string `json:"user_id"`
	Telegram       bool   `json:"telegram"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
}
