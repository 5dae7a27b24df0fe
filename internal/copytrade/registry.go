package copytrade

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/solana-sniper-bot/autotrader/internal/address"
	"github.com/solana-sniper-bot/autotrader/internal/models"
)

// Sort keys accepted by Registry.List.
const (
	SortProfit30d = "profit30d"
	SortWinRate   = "winRate"
	SortFollowers = "followers"
	SortTrades30d = "trades30d"
)

const DefaultListLimit = 20

// Registry is the directory of leader wallets users can browse and follow.
type Registry struct {
	mu      sync.RWMutex
	wallets map[string]models.LeaderWallet
}

type registryFile struct {
	Leaders []models.LeaderWallet `yaml:"leaders"`
}

func NewRegistry() *Registry {
	return &Registry{wallets: make(map[string]models.LeaderWallet)}
}

// LoadRegistry reads a YAML file of the form `leaders: [...]`.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read leaders file: %w", err)
	}
	return ParseRegistry(raw)
}

// ParseRegistry decodes YAML leader data. Every address must be valid.
func ParseRegistry(raw []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse leaders file: %w", err)
	}

	r := NewRegistry()
	for i, w := range f.Leaders {
		if err := r.Upsert(w); err != nil {
			return nil, fmt.Errorf("leader %d: %w", i, err)
		}
	}
	return r, nil
}

// Upsert adds or replaces a leader.
func (r *Registry) Upsert(w models.LeaderWallet) error {
	w.Address = strings.TrimSpace(w.Address)
	if err := address.Validate(w.Address); err != nil {
		return err
	}

	r.mu.Lock()
	r.wallets[w.Address] = w
	r.mu.Unlock()
	return nil
}

func (r *Registry) Get(addr string) (models.LeaderWallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[addr]
	return w, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.wallets)
}

// Addresses lists every registered leader in address order.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.wallets))
	for addr := range r.wallets {
		out = append(out, addr)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// List returns up to limit leaders, best first by sortBy. Unknown sort keys
// fall back to trailing 30 day profit.
func (r *Registry) List(sortBy string, limit int) []models.LeaderWallet {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	r.mu.RLock()
	out := make([]models.LeaderWallet, 0, len(r.wallets))
	for _, w := range r.wallets {
		out = append(out, w)
	}
	r.mu.RUnlock()

	var key func(models.LeaderWallet) float64
	switch sortBy {
	case SortWinRate:
		key = func(w models.LeaderWallet) float64 { return w.WinRatePercent }
	case SortFollowers:
		key = func(w models.LeaderWallet) float64 { return float64(w.FollowerCount) }
	case SortTrades30d:
		key = func(w models.LeaderWallet) float64 { return float64(w.Trailing30dTradeCount) }
	default:
		key = func(w models.LeaderWallet) float64 { return w.Trailing30dProfit }
	}

	sort.Slice(out, func(i, j int) bool {
		ki, kj := key(out[i]), key(out[j])
		if ki != kj {
			return ki > kj
		}
		return out[i].Address < out[j].Address
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
