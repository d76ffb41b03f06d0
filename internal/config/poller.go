package config

import (
	"errors"
	"time"
)

const (
	defaultStatsPollingInterval = 5 * time.Minute
	defaultAutoCompoundLockTTL  = 10 * time.Minute
	defaultDistributionLockTTL  = 15 * time.Minute
	defaultReconcileLockTTL     = 5 * time.Minute
	defaultCompoundPageSize     = 100
	defaultSideEffectTimeout    = 30 * time.Second
)

type PollerConfig struct {
	AutoCompoundInterval   time.Duration `mapstructure:"auto-compound-interval"`
	DistributionInterval   time.Duration `mapstructure:"distribution-interval"`
	ReconciliationInterval time.Duration `mapstructure:"reconciliation-interval"`
	StatsPollingInterval   time.Duration `mapstructure:"stats-polling-interval"`

	AutoCompoundLockTTL   time.Duration `mapstructure:"auto-compound-lock-ttl"`
	DistributionLockTTL   time.Duration `mapstructure:"distribution-lock-ttl"`
	ReconciliationLockTTL time.Duration `mapstructure:"reconciliation-lock-ttl"`

	CompoundPageSize uint32 `mapstructure:"compound-page-size"`
	// SideEffectTimeout bounds the post-commit work of a claim or unstake
	// (transaction log, referral bonus, event)
	SideEffectTimeout time.Duration `mapstructure:"side-effect-timeout"`
}

func (cfg *PollerConfig) Validate() error {
	if cfg.AutoCompoundInterval <= 0 {
		return errors.New("auto-compound-interval must be positive")
	}

	if cfg.DistributionInterval <= 0 {
		return errors.New("distribution-interval must be positive")
	}

	if cfg.ReconciliationInterval <= 0 {
		return errors.New("reconciliation-interval must be positive")
	}

	if cfg.StatsPollingInterval <= 0 {
		cfg.StatsPollingInterval = defaultStatsPollingInterval
	}
	if cfg.AutoCompoundLockTTL <= 0 {
		cfg.AutoCompoundLockTTL = defaultAutoCompoundLockTTL
	}
	if cfg.DistributionLockTTL <= 0 {
		cfg.DistributionLockTTL = defaultDistributionLockTTL
	}
	if cfg.ReconciliationLockTTL <= 0 {
		cfg.ReconciliationLockTTL = defaultReconcileLockTTL
	}
	if cfg.CompoundPageSize == 0 {
		cfg.CompoundPageSize = defaultCompoundPageSize
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = defaultSideEffectTimeout
	}

	return nil
}
