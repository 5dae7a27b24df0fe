package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/utils"
)

// Sender is the part of tgbotapi.BotAPI used to post messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel posts alerts to users who enabled Telegram.
type TelegramChannel struct {
	sender      Sender
	defaultChat int64
}

// NewTelegramChannel authenticates the bot token against the Bot API.
func NewTelegramChannel(token string, defaultChat int64) (*TelegramChannel, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegramChannelWithSender(api, defaultChat), nil
}

// NewTelegramChannelWithSender builds the channel over an existing sender.
func NewTelegramChannelWithSender(sender Sender, defaultChat int64) *TelegramChannel {
	return &TelegramChannel{sender: sender, defaultChat: defaultChat}
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Deliver(ctx context.Context, prefs models.NotificationPreferences, alert models.Alert) error {
	if !prefs.Telegram {
		return nil
	}
	chatID := prefs.TelegramChatID
	if chatID == 0 {
		chatID = t.defaultChat
	}
	if chatID == 0 {
		return fmt.Errorf("no telegram chat for user %s", alert.UserID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, formatAlert(alert))
	msg.DisableWebPagePreview = true
	if _, err := t.sender.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func formatAlert(a models.Alert) string {
	icon := "ℹ️"
	switch a.Kind {
	case models.AlertSuccess:
		icon = "✅"
	case models.AlertWarning:
		icon = "⚠️"
	case models.AlertError:
		icon = "❌"
	}
	return fmt.Sprintf("%s %s\n\n%s", icon, a.Title, a.Message)
}

// LogChannel writes every alert to the service log.
type LogChannel struct {
	logger *utils.Logger
}

func NewLogChannel(logger *utils.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (l *LogChannel) Name() string { return "log" }

func (l *LogChannel) Deliver(_ context.Context, _ models.NotificationPreferences, alert models.Alert) error {
	l.logger.Info("Alert",
		"user_id", alert.UserID, "kind", string(alert.Kind), "title", alert.Title, "message", alert.Message)
	return nil
}
