package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/policy"
)

var _ policy.Persister = (*Store)(nil)

// SaveSniperPolicy upserts the user's policy.
func (s *Store) SaveSniperPolicy(ctx context.Context, p models.SniperPolicy) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&p).Error
	if err != nil {
		return fmt.Errorf("save sniper policy: %w", err)
	}
	return nil
}

// SaveCopyTradePolicy upserts the (user, leader) policy.
func (s *Store) SaveCopyTradePolicy(ctx context.Context, p models.CopyTradePolicy) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&p).Error
	if err != nil {
		return fmt.Errorf("save copy-trade policy: %w", err)
	}
	return nil
}

// DeleteCopyTradePolicy removes the (user, leader) policy. Missing rows are not an error.
func (s *Store) DeleteCopyTradePolicy(ctx context.Context, userID, leader string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND leader_wallet_address = ?", userID, leader).
		Delete(&models.CopyTradePolicy{}).Error
	if err != nil {
		return fmt.Errorf("delete copy-trade policy: %w", err)
	}
	return nil
}

func (s *Store) LoadSniperPolicies(ctx context.Context) ([]models.SniperPolicy, error) {
	var out []models.SniperPolicy
	if err := s.db.WithContext(ctx).Order("user_id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load sniper policies: %w", err)
	}
	return out, nil
}

func (s *Store) LoadCopyTradePolicies(ctx context.Context) ([]models.CopyTradePolicy, error) {
	var out []models.CopyTradePolicy
	if err := s.db.WithContext(ctx).Order("user_id, leader_wallet_address").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load copy-trade policies: %w", err)
	}
	return out, nil
}
