// Package notify delivers user alerts. Every alert lands in the user's inbox and
// is fanned out to the enabled external channels; delivery failures are logged
// and never reach the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/utils"
)

// ErrAlertNotFound is returned by MarkRead for unknown alert ids.
var ErrAlertNotFound = errors.New("alert not found")

// DefaultInboxSize bounds how many alerts are kept per user.
const DefaultInboxSize = 200

// Channel is an external delivery target.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, prefs models.NotificationPreferences, alert models.Alert) error
}

// Recorder receives per-channel delivery outcomes.
type Recorder interface {
	Notification(channel string, err error)
}

// Option configures a Service.
type Option func(*Service)

func WithChannels(channels ...Channel) Option {
	return func(s *Service) { s.channels = append(s.channels, channels...) }
}

func WithLogger(l *utils.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithInboxSize(n int) Option {
	return func(s *Service) { s.inboxSize = n }
}

func WithDeliveryTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// Service is the notifier used by both engines.
type Service struct {
	channels  []Channel
	logger    *utils.Logger
	recorder  Recorder
	inboxSize int
	timeout   time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	inbox map[string][]models.Alert
	prefs map[string]models.NotificationPreferences

	wg sync.WaitGroup
}

// NewService creates a notifier.
func NewService(opts ...Option) *Service {
	s := &Service{
		logger:    utils.Nop(),
		inboxSize: DefaultInboxSize,
		timeout:   10 * time.Second,
		now:       time.Now,
		inbox:     make(map[string][]models.Alert),
		prefs:     make(map[string]models.NotificationPreferences),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify stores the alert and delivers it in the background. It never blocks on
// external channels.
func (s *Service) Notify(ctx context.Context, userID string, kind models.AlertKind, title, message string) {
	alert := models.Alert{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Timestamp: s.now(),
	}

	s.mu.Lock()
	alerts := append(s.inbox[userID], alert)
	if over := len(alerts) - s.inboxSize; s.inboxSize > 0 && over > 0 {
		alerts = append([]models.Alert(nil), alerts[over:]...)
	}
	s.inbox[userID] = alerts
	prefs := s.preferencesLocked(userID)
	s.mu.Unlock()

	if len(s.channels) == 0 {
		return
	}

	// Delivery outlives the caller's request.
	deliverCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(deliverCtx, prefs, alert)
	}()
}

func (s *Service) deliver(ctx context.Context, prefs models.NotificationPreferences, alert models.Alert) {
	for _, ch := range s.channels {
		err := s.deliverOne(ctx, ch, prefs, alert)
		if s.recorder != nil {
			s.recorder.Notification(ch.Name(), err)
		}
		if err != nil {
			s.logger.Warn("Notification delivery failed",
				"channel", ch.Name(), "user_id", alert.UserID, "alert_id", alert.ID, "error", err)
		}
	}
}

func (s *Service) deliverOne(ctx context.Context, ch Channel, prefs models.NotificationPreferences, alert models.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
		}
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return ch.Deliver(ctx, prefs, alert)
}

// Wait blocks until background deliveries finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Alerts returns the user's alerts newest first.
func (s *Service) Alerts(userID string, unreadOnly bool) []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.inbox[userID]
	out := make([]models.Alert, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		if unreadOnly && stored[i].Read {
			continue
		}
		out = append(out, stored[i])
	}
	return out
}

// UnreadCount returns how many alerts the user has not read.
func (s *Service) UnreadCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.inbox[userID] {
		if !a.Read {
			n++
		}
	}
	return n
}

// MarkRead marks one alert as read.
func (s *Service) MarkRead(userID, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts := s.inbox[userID]
	for i := range alerts {
		if alerts[i].ID == alertID {
			alerts[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
}

// MarkAllRead marks every alert of the user as read and returns how many changed.
func (s *Service) MarkAllRead(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	alerts := s.inbox[userID]
	for i := range alerts {
		if !alerts[i].Read {
			alerts[i].Read = true
			n++
		}
	}
	return n
}

// SetPreferences replaces the user's channel preferences.
func (s *Service) SetPreferences(p models.NotificationPreferences) {
	s.mu.Lock()
	s.prefs[p.UserID] = p
	s.mu.Unlock()
}

// Preferences returns the user's channel preferences.
func (s *Service) Preferences(userID string) models.NotificationPreferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preferencesLocked(userID)
}

func (s *Service) preferencesLocked(userID string) models.NotificationPreferences {
	if p, ok := s.prefs[userID]; ok {
		return p
	}
	return models.NotificationPreferences{UserID: userID}
}
