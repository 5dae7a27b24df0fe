// Package tradelog stores the append-only sniper and copy-trade logs. Entries are
// created pending and resolved exactly once to success or failed.
package tradelog

import (
	"context"
	"errors"

	"github.com/solana-sniper-bot/autotrader/internal/models"
)

var (
	ErrNotFound        = errors.New("log entry not found")
	ErrAlreadyResolved = errors.New("log entry already resolved")
	ErrInvalidInput    = errors.New("invalid log entry")
	ErrDuplicateKey    = errors.New("duplicate log entry id")
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Store is the log persistence contract shared by the memory and postgres backends.
type Store interface {
	AppendSniper(ctx context.Context, e *models.SniperLogEntry) error
	// ResolveSniper moves a pending entry to a terminal status and returns the result.
	ResolveSniper(ctx context.Context, id string, res models.Resolution) (models.SniperLogEntry, error)
	// SniperLogs returns the user's entries newest first.
	SniperLogs(ctx context.Context, userID string, limit int) ([]models.SniperLogEntry, error)
	// SniperStats counts all of the user's entries, not just one page.
	SniperStats(ctx context.Context, userID string) (Stats, error)

	AppendCopyTrade(ctx context.Context, e *models.CopyTradeLogEntry) error
	ResolveCopyTrade(ctx context.Context, id string, res models.Resolution) (models.CopyTradeLogEntry, error)
	CopyTradeLogs(ctx context.Context, userID string, limit int) ([]models.CopyTradeLogEntry, error)

	// Claim records an idempotency key. It returns false if the key was already claimed.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets a claimed key so the action can be attempted again. It is
	// used when nothing was recorded under the claim.
	Release(ctx context.Context, key string) error
}

// Stats summarizes a user's sniper log.
type Stats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
}

// NormalizeLimit clamps a caller supplied page size.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// ValidateResolution checks that res carries a terminal status.
func ValidateResolution(res models.Resolution) error {
	if !res.Status.IsTerminal() {
		return errors.Join(ErrInvalidInput, errors.New("resolution status must be success or failed"))
	}
	return nil
}
