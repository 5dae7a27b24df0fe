// Package policy holds per-user sniper and copy-trade policies. Policies are
// validated at the store boundary and kept in memory; an optional Persister
// receives every accepted write before it becomes visible to the engines.
package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/utils"
)

// Persister durably stores policies.
type Persister interface {
	SaveSniperPolicy(ctx context.Context, p models.SniperPolicy) error
	SaveCopyTradePolicy(ctx context.Context, p models.CopyTradePolicy) error
	DeleteCopyTradePolicy(ctx context.Context, userID, leader string) error
	LoadSniperPolicies(ctx context.Context) ([]models.SniperPolicy, error)
	LoadCopyTradePolicies(ctx context.Context) ([]models.CopyTradePolicy, error)
}

// Option configures a Store.
type Option func(*Store)

func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

func WithLogger(l *utils.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the clock used to stamp follow times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is safe for concurrent use. Writers are serialised by writeMu so the
// persister sees writes in the same order as the in-memory maps.
type Store struct {
	writeMu sync.Mutex

	mu     sync.RWMutex
	sniper map[string]models.SniperPolicy
	copy   map[string]map[string]models.CopyTradePolicy

	validate  *validator.Validate
	persister Persister
	logger    *utils.Logger
	now       func() time.Time
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sniper:   make(map[string]models.SniperPolicy),
		copy:     make(map[string]map[string]models.CopyTradePolicy),
		validate: NewValidator(),
		logger:   utils.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with what the persister holds.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	sniper, err := s.persister.LoadSniperPolicies(ctx)
	if err != nil {
		return fmt.Errorf("load sniper policies: %w", err)
	}
	copyPolicies, err := s.persister.LoadCopyTradePolicies(ctx)
	if err != nil {
		return fmt.Errorf("load copy-trade policies: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sniper = make(map[string]models.SniperPolicy, len(sniper))
	for _, p := range sniper {
		s.sniper[p.UserID] = p.Clone()
	}
	s.copy = make(map[string]map[string]models.CopyTradePolicy)
	for _, p := range copyPolicies {
		s.putCopyLocked(p)
	}

	s.logger.Info("Policies loaded", "sniper", len(sniper), "copy_trade", len(copyPolicies))
	return nil
}

// SetSniperPolicy validates p and replaces the user's sniper policy entirely.
func (s *Store) SetSniperPolicy(ctx context.Context, p models.SniperPolicy) error {
	if err := validateStruct(s.validate, p); err != nil {
		return err
	}
	p = p.Clone()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.saveSniper(ctx, &p); err != nil {
		return err
	}

	s.mu.Lock()
	s.sniper[p.UserID] = p
	s.mu.Unlock()
	return nil
}

// GetSniperPolicy returns a copy of the user's policy.
func (s *Store) GetSniperPolicy(userID string) (models.SniperPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.sniper[userID]
	if !ok {
		return models.SniperPolicy{}, false
	}
	return p.Clone(), true
}

// EnableSniper turns the user's policy on. Missing policies are ignored.
func (s *Store) EnableSniper(ctx context.Context, userID string) error {
	return s.setSniperEnabled(ctx, userID, true)
}

// DisableSniper turns the user's policy off. Missing policies are ignored.
// Trades already dispatched are not cancelled.
func (s *Store) DisableSniper(ctx context.Context, userID string) error {
	return s.setSniperEnabled(ctx, userID, false)
}

func (s *Store) setSniperEnabled(ctx context.Context, userID string, enabled bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	p, ok := s.sniper[userID]
	s.mu.RUnlock()
	if !ok || p.Enabled == enabled {
		return nil
	}

	p = p.Clone()
	p.Enabled = enabled
	if err := s.saveSniper(ctx, &p); err != nil {
		return err
	}

	s.mu.Lock()
	s.sniper[userID] = p
	s.mu.Unlock()
	return nil
}

func (s *Store) saveSniper(ctx context.Context, p *models.SniperPolicy) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveSniperPolicy(ctx, *p); err != nil {
		return fmt.Errorf("persist sniper policy for %s: %w", p.UserID, err)
	}
	return nil
}

// EnabledSniperPolicies snapshots every enabled policy, ordered by user.
func (s *Store) EnabledSniperPolicies() []models.SniperPolicy {
	s.mu.RLock()
	out := make([]models.SniperPolicy, 0, len(s.sniper))
	for _, p := range s.sniper {
		if p.Enabled {
			out = append(out, p.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// FollowLeader validates p and upserts it under (user, leader).
func (s *Store) FollowLeader(ctx context.Context, p models.CopyTradePolicy) error {
	if err := validateStruct(s.validate, p); err != nil {
		return err
	}
	p = p.Clone()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// An active follow keeps its start time across edits; a new or re-enabled
	// follow starts now.
	s.mu.RLock()
	prev, ok := s.copy[p.UserID][p.LeaderWalletAddress]
	s.mu.RUnlock()
	if ok && prev.Enabled && p.Enabled && !prev.FollowedAt.IsZero() {
		p.FollowedAt = prev.FollowedAt
	} else {
		p.FollowedAt = s.now().UTC()
	}

	if s.persister != nil {
		if err := s.persister.SaveCopyTradePolicy(ctx, p); err != nil {
			return fmt.Errorf("persist copy-trade policy for %s/%s: %w", p.UserID, p.LeaderWalletAddress, err)
		}
	}

	s.mu.Lock()
	s.putCopyLocked(p)
	s.mu.Unlock()
	return nil
}

func (s *Store) putCopyLocked(p models.CopyTradePolicy) {
	byLeader, ok := s.copy[p.UserID]
	if !ok {
		byLeader = make(map[string]models.CopyTradePolicy)
		s.copy[p.UserID] = byLeader
	}
	byLeader[p.LeaderWalletAddress] = p.Clone()
}

// UnfollowLeader removes the (user, leader) policy. Missing policies are ignored.
func (s *Store) UnfollowLeader(ctx context.Context, userID, leader string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	_, ok := s.copy[userID][leader]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	if s.persister != nil {
		if err := s.persister.DeleteCopyTradePolicy(ctx, userID, leader); err != nil {
			return fmt.Errorf("delete copy-trade policy for %s/%s: %w", userID, leader, err)
		}
	}

	s.mu.Lock()
	delete(s.copy[userID], leader)
	if len(s.copy[userID]) == 0 {
		delete(s.copy, userID)
	}
	s.mu.Unlock()
	return nil
}

// GetFollowedLeaders returns the user's copy-trade policies ordered by leader.
func (s *Store) GetFollowedLeaders(userID string) []models.CopyTradePolicy {
	s.mu.RLock()
	out := make([]models.CopyTradePolicy, 0, len(s.copy[userID]))
	for _, p := range s.copy[userID] {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LeaderWalletAddress < out[j].LeaderWalletAddress })
	return out
}

// FollowersOf returns every enabled policy following leader, ordered by user.
func (s *Store) FollowersOf(leader string) []models.CopyTradePolicy {
	s.mu.RLock()
	var out []models.CopyTradePolicy
	for _, byLeader := range s.copy {
		if p, ok := byLeader[leader]; ok && p.Enabled {
			out = append(out, p.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// TrackedLeaders lists leaders with at least one enabled follower.
func (s *Store) TrackedLeaders() []string {
	seen := make(map[string]struct{})
	s.mu.RLock()
	for _, byLeader := range s.copy {
		for leader, p := range byLeader {
			if p.Enabled {
				seen[leader] = struct{}{}
			}
		}
	}
	s.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for leader := range seen {
		out = append(out, leader)
	}
	sort.Strings(out)
	return out
}
