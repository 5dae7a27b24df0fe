package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/tradelog"
)

var _ tradelog.Store = (*Store)(nil)

func (s *Store) AppendSniper(ctx context.Context, e *models.SniperLogEntry) error {
	if e == nil || e.ID == "" || e.UserID == "" {
		return tradelog.ErrInvalidInput
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		if isDuplicateKeyError(err) {
			return tradelog.ErrDuplicateKey
		}
		return fmt.Errorf("insert sniper log: %w", err)
	}
	return nil
}

// ResolveSniper locks the row, checks it is still pending and writes the outcome.
func (s *Store) ResolveSniper(ctx context.Context, id string, res models.Resolution) (models.SniperLogEntry, error) {
	if err := tradelog.ValidateResolution(res); err != nil {
		return models.SniperLogEntry{}, err
	}

	var entry models.SniperLogEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&entry, "id = ?", id).Error; err != nil {
			return err
		}
		if entry.Status.IsTerminal() {
			return tradelog.ErrAlreadyResolved
		}
		entry.Resolve(res)
		return tx.Save(&entry).Error
	})
	return entry, resolveError(err)
}

func (s *Store) SniperLogs(ctx context.Context, userID string, limit int) ([]models.SniperLogEntry, error) {
	var out []models.SniperLogEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(`"timestamp" DESC, id DESC`).
		Limit(tradelog.NormalizeLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query sniper logs: %w", err)
	}
	return out, nil
}

func (s *Store) AppendCopyTrade(ctx context.Context, e *models.CopyTradeLogEntry) error {
	if e == nil || e.ID == "" || e.UserID == "" {
		return tradelog.ErrInvalidInput
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		if isDuplicateKeyError(err) {
			return tradelog.ErrDuplicateKey
		}
		return fmt.Errorf("insert copy-trade log: %w", err)
	}
	return nil
}

func (s *Store) ResolveCopyTrade(ctx context.Context, id string, res models.Resolution) (models.CopyTradeLogEntry, error) {
	if err := tradelog.ValidateResolution(res); err != nil {
		return models.CopyTradeLogEntry{}, err
	}

	var entry models.CopyTradeLogEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&entry, "id = ?", id).Error; err != nil {
			return err
		}
		if entry.Status.IsTerminal() {
			return tradelog.ErrAlreadyResolved
		}
		entry.Resolve(res)
		return tx.Save(&entry).Error
	})
	return entry, resolveError(err)
}

func (s *Store) CopyTradeLogs(ctx context.Context, userID string, limit int) ([]models.CopyTradeLogEntry, error) {
	var out []models.CopyTradeLogEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(`"timestamp" DESC, id DESC`).
		Limit(tradelog.NormalizeLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query copy-trade logs: %w", err)
	}
	return out, nil
}

// Claim inserts key. A unique violation means another dispatch already owns it.
func (s *Store) Claim(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, tradelog.ErrInvalidInput
	}
	err := s.db.WithContext(ctx).Create(&IdempotencyKey{Key: key, CreatedAt: time.Now().UTC()}).Error
	switch {
	case err == nil:
		return true, nil
	case isDuplicateKeyError(err):
		return false, nil
	default:
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
}

func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&IdempotencyKey{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// SniperStats counts the user's entries in one pass.
func (s *Store) SniperStats(ctx context.Context, userID string) (tradelog.Stats, error) {
	var row struct {
		Total      int
		Successful int
	}
	err := s.db.WithContext(ctx).Model(&models.SniperLogEntry{}).
		Select("COUNT(*) AS total, COUNT(*) FILTER (WHERE status = ?) AS successful", models.LogStatusSuccess).
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return tradelog.Stats{}, fmt.Errorf("count sniper logs: %w", err)
	}
	return tradelog.Stats{Total: row.Total, Successful: row.Successful}, nil
}

func resolveError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tradelog.ErrNotFound
	case errors.Is(err, tradelog.ErrAlreadyResolved):
		return err
	default:
		return fmt.Errorf("resolve log entry: %w", err)
	}
}
