package utils

import (
	"errors"
	"fmt"
	"os"

	"github.com/solana-sniper-bot/autotrader/internal/config"
)

// ValidateConfig performs startup checks that need the filesystem or span
// several sections. Field-level rules are enforced by the config loader.
func ValidateConfig(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	var errs []error

	if path := cfg.CopyTrade.LeadersFile; path != "" {
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, fmt.Errorf("copy_trade.leaders_file: %w", err))
		}
	}

	if cfg.Sniper.Enabled && cfg.Sniper.CandidateFeedURL == "" {
		errs = append(errs, errors.New("sniper.candidate_feed_url is required when the sniper is enabled"))
	}

	if cfg.Executor.Mode == "http" && len(cfg.Executor.UserWallets) == 0 {
		errs = append(errs, errors.New("executor.user_wallets must map at least one user in http mode"))
	}

	if cfg.IsProduction() && cfg.Executor.Mode == "dry-run" {
		errs = append(errs, errors.New("executor.mode dry-run is not allowed in production"))
	}

	return errors.Join(errs...)
}
