package tradelog

import (
	"context"
	"sync"

	"github.com/solana-sniper-bot/autotrader/internal/models"
)

// MemoryStore is an in-memory Store. Entries are copied on the way in and out.
type MemoryStore struct {
	mu sync.RWMutex

	sniperByID   map[string]*models.SniperLogEntry
	sniperByUser map[string][]*models.SniperLogEntry

	copyByID   map[string]*models.CopyTradeLogEntry
	copyByUser map[string][]*models.CopyTradeLogEntry

	claims map[string]struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sniperByID:   make(map[string]*models.SniperLogEntry),
		sniperByUser: make(map[string][]*models.SniperLogEntry),
		copyByID:     make(map[string]*models.CopyTradeLogEntry),
		copyByUser:   make(map[string][]*models.CopyTradeLogEntry),
		claims:       make(map[string]struct{}),
	}
}

func (s *MemoryStore) AppendSniper(_ context.Context, e *models.SniperLogEntry) error {
	if e == nil || e.ID == "" || e.UserID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sniperByID[e.ID]; exists {
		return ErrDuplicateKey
	}
	entry := e.Clone()
	if entry.Status == "" {
		entry.Status = models.LogStatusPending
	}
	s.sniperByID[e.ID] = &entry
	s.sniperByUser[e.UserID] = append(s.sniperByUser[e.UserID], &entry)
	return nil
}

func (s *MemoryStore) ResolveSniper(_ context.Context, id string, res models.Resolution) (models.SniperLogEntry, error) {
	if err := ValidateResolution(res); err != nil {
		return models.SniperLogEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sniperByID[id]
	if !ok {
		return models.SniperLogEntry{}, ErrNotFound
	}
	if entry.Status.IsTerminal() {
		return entry.Clone(), ErrAlreadyResolved
	}
	entry.Resolve(res)
	return entry.Clone(), nil
}

func (s *MemoryStore) SniperLogs(_ context.Context, userID string, limit int) ([]models.SniperLogEntry, error) {
	limit = NormalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.sniperByUser[userID]
	out := make([]models.SniperLogEntry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i].Clone())
	}
	return out, nil
}

func (s *MemoryStore) SniperStats(_ context.Context, userID string) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	for _, e := range s.sniperByUser[userID] {
		st.Total++
		if e.Status == models.LogStatusSuccess {
			st.Successful++
		}
	}
	return st, nil
}

func (s *MemoryStore) AppendCopyTrade(_ context.Context, e *models.CopyTradeLogEntry) error {
	if e == nil || e.ID == "" || e.UserID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.copyByID[e.ID]; exists {
		return ErrDuplicateKey
	}
	entry := e.Clone()
	if entry.Status == "" {
		entry.Status = models.LogStatusPending
	}
	s.copyByID[e.ID] = &entry
	s.copyByUser[e.UserID] = append(s.copyByUser[e.UserID], &entry)
	return nil
}

func (s *MemoryStore) ResolveCopyTrade(_ context.Context, id string, res models.Resolution) (models.CopyTradeLogEntry, error) {
	if err := ValidateResolution(res); err != nil {
		return models.CopyTradeLogEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.copyByID[id]
	if !ok {
		return models.CopyTradeLogEntry{}, ErrNotFound
	}
	if entry.Status.IsTerminal() {
		return entry.Clone(), ErrAlreadyResolved
	}
	entry.Resolve(res)
	return entry.Clone(), nil
}

func (s *MemoryStore) CopyTradeLogs(_ context.Context, userID string, limit int) ([]models.CopyTradeLogEntry, error) {
	limit = NormalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.copyByUser[userID]
	out := make([]models.CopyTradeLogEntry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i].Clone())
	}
	return out, nil
}

func (s *MemoryStore) Claim(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.claims[key]; exists {
		return false, nil
	}
	s.claims[key] = struct{}{}
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.claims, key)
	s.mu.Unlock()
	return nil
}
