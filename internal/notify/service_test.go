package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/utils"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

type countingRecorder struct {
	mu     sync.Mutex
	errors map[string]int
	oks    map[string]int
}

func (r *countingRecorder) Notification(channel string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errors[channel]++
	} else {
		r.oks[channel]++
	}
}

type panickyChannel struct{}

func (panickyChannel) Name() string { return "panicky" }
func (panickyChannel) Deliver(context.Context, models.NotificationPreferences, models.Alert) error {
	panic("boom")
}

func TestService_InboxAndReadState(t *testing.T) {
	s := NewService()
	ctx := context.Background()

	s.Notify(ctx, "u1", models.AlertSuccess, "Sniper Bot Success", "first")
	s.Notify(ctx, "u1", models.AlertInfo, "Info", "second")
	s.Notify(ctx, "u2", models.AlertInfo, "Other", "not yours")

	alerts := s.Alerts("u1", false)
	require.Len(t, alerts, 2)
	assert.Equal(t, "second", alerts[0].Message)
	assert.NotEmpty(t, alerts[0].ID)
	assert.Equal(t, 2, s.UnreadCount("u1"))

	require.NoError(t, s.MarkRead("u1", alerts[1].ID))
	assert.Len(t, s.Alerts("u1", true), 1)

	assert.ErrorIs(t, s.MarkRead("u1", alerts[1].ID+"x"), ErrAlertNotFound)
	assert.ErrorIs(t, s.MarkRead("u2", alerts[0].ID), ErrAlertNotFound)

	assert.Equal(t, 1, s.MarkAllRead("u1"))
	assert.Equal(t, 0, s.UnreadCount("u1"))
	assert.Equal(t, 1, s.UnreadCount("u2"))
}

func TestService_InboxBounded(t *testing.T) {
	s := NewService(WithInboxSize(2))
	for _, m := range []string{"a", "b", "c"} {
		s.Notify(context.Background(), "u1", models.AlertInfo, "t", m)
	}

	alerts := s.Alerts("u1", false)
	require.Len(t, alerts, 2)
	assert.Equal(t, "c", alerts[0].Message)
	assert.Equal(t, "b", alerts[1].Message)
}

func TestService_FanOutIsolatesFailures(t *testing.T) {
	sender := &fakeSender{}
	rec := &countingRecorder{errors: map[string]int{}, oks: map[string]int{}}
	var logBuf bytes.Buffer
	logger := utils.NewLoggerWithOutput("info", "json", &logBuf)

	s := NewService(
		WithChannels(panickyChannel{}, NewTelegramChannelWithSender(sender, 0), NewLogChannel(logger)),
		WithRecorder(rec),
		WithLogger(logger),
	)
	s.SetPreferences(models.NotificationPreferences{UserID: "u1", Telegram: true, TelegramChatID: 42})

	s.Notify(context.Background(), "u1", models.AlertSuccess, "Sniper Bot Success", "Bought token")
	s.Wait()

	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "Sniper Bot Success")
	assert.Equal(t, 1, rec.errors["panicky"])
	assert.Equal(t, 1, rec.oks["telegram"])
	assert.Equal(t, 1, rec.oks["log"])
	assert.Contains(t, logBuf.String(), "Bought token")
}

func TestTelegramChannel_Preferences(t *testing.T) {
	sender := &fakeSender{}
	ch := NewTelegramChannelWithSender(sender, 0)
	alert := models.Alert{UserID: "u1", Title: "t"}
	ctx := context.Background()

	require.NoError(t, ch.Deliver(ctx, models.NotificationPreferences{UserID: "u1"}, alert))
	assert.Empty(t, sender.sent)

	err := ch.Deliver(ctx, models.NotificationPreferences{UserID: "u1", Telegram: true}, alert)
	assert.Error(t, err)

	sender.err = errors.New("forbidden: bot was blocked by the user")
	withDefault := NewTelegramChannelWithSender(sender, 7)
	assert.Error(t, withDefault.Deliver(ctx, models.NotificationPreferences{UserID: "u1", Telegram: true}, alert))
}
