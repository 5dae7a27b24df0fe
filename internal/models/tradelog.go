// Package models - sniper and copy-trade log entries
package models

import (
	"time"

	"gorm.io/gorm"
)

// TradeAction is the direction of a trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// Valid reports whether a is a known action.
func (a TradeAction) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// LogStatus is the lifecycle state of a log entry: pending until the executor
// answers, then success or failed.
type LogStatus string

const (
	LogStatusPending LogStatus = "pending"
	LogStatusSuccess LogStatus = "success"
	LogStatusFailed  LogStatus = "failed"
)

// IsTerminal reports whether the entry can no longer change.
func (s LogStatus) IsTerminal() bool {
	return s == LogStatusSuccess || s == LogStatusFailed
}

// SniperLogEntry records one sniper buy attempt.
type SniperLogEntry struct {
	ID             string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID         string      `gorm:"type:varchar(64);not null;index:idx_sniper_logs_user_ts,priority:1" json:"user_id"`
	TokenID        string      `gorm:"type:varchar(44);not null;index" json:"token_id"`
	Action         TradeAction `gorm:"type:varchar(10);not null" json:"action"`
	Amount         float64     `gorm:"type:decimal(30,9);not null" json:"amount"`
	Price          float64     `gorm:"type:decimal(30,18);default:0" json:"price"`
	Status         LogStatus   `gorm:"type:varchar(20);default:'pending'" json:"status"`
	TxRef          string      `gorm:"type:varchar(100)" json:"tx_ref,omitempty"`
	Error          string      `json:"error,omitempty"`
	IdempotencyKey string      `gorm:"type:varchar(64);index" json:"-"`
	Timestamp      time.Time   `gorm:"not null;index:idx_sniper_logs_user_ts,priority:2" json:"timestamp"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
}

// TableName overrides the gorm table name.
func (SniperLogEntry) TableName() string { return "sniper_logs" }

// BeforeCreate fills in the timestamp and initial status.
func (e *SniperLogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = LogStatusPending
	}
	return nil
}

// Resolve moves the entry to a terminal status.
func (e *SniperLogEntry) Resolve(res Resolution) {
	e.Status = res.Status
	e.TxRef = res.TxRef
	e.Price = res.Price
	e.Error = res.Error
	at := res.At
	e.ResolvedAt = &at
}

// Clone returns a copy that shares no pointers with e.
func (e SniperLogEntry) Clone() SniperLogEntry {
	e.ResolvedAt = cloneTime(e.ResolvedAt)
	return e
}

// CopyTradeLogEntry records one mirrored trade for one follower.
type CopyTradeLogEntry struct {
	ID                   string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID               string      `gorm:"type:varchar(64);not null;index:idx_copy_logs_user_ts,priority:1" json:"user_id"`
	LeaderWalletAddress  string      `gorm:"type:varchar(44);not null;index" json:"leader_wallet_address"`
	LeaderTxSignature    string      `gorm:"type:varchar(100)" json:"leader_tx_signature,omitempty"`
	TokenID              string      `gorm:"type:varchar(44);not null" json:"token_id"`
	Action               TradeAction `gorm:"type:varchar(10);not null" json:"action"`
	LeaderObservedAmount float64     `gorm:"type:decimal(30,9)" json:"leader_observed_amount"`
	CopiedAmount         float64     `gorm:"type:decimal(30,9)" json:"copied_amount"`
	Amount               float64     `gorm:"type:decimal(30,9);not null" json:"amount"`
	Price                float64     `gorm:"type:decimal(30,18);default:0" json:"price"`
	Status               LogStatus   `gorm:"type:varchar(20);default:'pending'" json:"status"`
	TxRef                string      `gorm:"type:varchar(100)" json:"tx_ref,omitempty"`
	Error                string      `json:"error,omitempty"`
	PnL                  *float64    `gorm:"type:decimal(30,9)" json:"pnl,omitempty"`
	IdempotencyKey       string      `gorm:"type:varchar(64);index" json:"-"`
	Timestamp            time.Time   `gorm:"not null;index:idx_copy_logs_user_ts,priority:2" json:"timestamp"`
	ResolvedAt           *time.Time  `json:"resolved_at,omitempty"`
}

// TableName overrides the gorm table name.
func (CopyTradeLogEntry) TableName() string { return "copy_trade_logs" }

// BeforeCreate fills in the timestamp and initial status.
func (e *CopyTradeLogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = LogStatusPending
	}
	return nil
}

// Resolve moves the entry to a terminal status.
func (e *CopyTradeLogEntry) Resolve(res Resolution) {
	e.Status = res.Status
	e.TxRef = res.TxRef
	e.Price = res.Price
	e.Error = res.Error
	e.PnL = cloneFloat(res.PnL)
	at := res.At
	e.ResolvedAt = &at
}

// Clone returns a copy that shares no pointers with e.
func (e CopyTradeLogEntry) Clone() CopyTradeLogEntry {
	e.PnL = cloneFloat(e.PnL)
	e.ResolvedAt = cloneTime(e.ResolvedAt)
	return e
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Resolution is the terminal outcome written onto a pending log entry.
type Resolution struct {
	Status LogStatus
	TxRef  string
	Price  float64
	Error  string
	PnL    *float64
	At     time.Time
}
