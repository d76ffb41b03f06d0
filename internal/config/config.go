package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Db       DbConfig       `mapstructure:"db"`
	Solana   SolanaConfig   `mapstructure:"solana"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Treasury TreasuryConfig `mapstructure:"treasury"`
	Staking  StakingConfig  `mapstructure:"staking"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Queue    *QueueConfig   `mapstructure:"queue"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

func (cfg *Config) Validate() error {
	if err := cfg.Db.Validate(); err != nil {
		return fmt.Errorf("db config: %w", err)
	}

	if err := cfg.Solana.Validate(); err != nil {
		return fmt.Errorf("solana config: %w", err)
	}

	// payouts wait for confirmation inside the position lock transaction
	if budget := cfg.Db.TxTimeout - cfg.Db.LockWaitTimeout; cfg.Solana.ConfirmTimeout >= budget {
		return fmt.Errorf(
			"solana confirm-timeout %s must be below db tx-timeout minus lock-wait-timeout (%s)",
			cfg.Solana.ConfirmTimeout, budget,
		)
	}

	if err := cfg.Vault.Validate(); err != nil {
		return fmt.Errorf("vault config: %w", err)
	}

	if err := cfg.Treasury.Validate(); err != nil {
		return fmt.Errorf("treasury config: %w", err)
	}

	if err := cfg.Staking.Validate(); err != nil {
		return fmt.Errorf("staking config: %w", err)
	}

	if err := cfg.Poller.Validate(); err != nil {
		return fmt.Errorf("poller config: %w", err)
	}

	// queue is optional, events are not published without it
	if cfg.Queue != nil {
		if err := cfg.Queue.Validate(); err != nil {
			return fmt.Errorf("queue config: %w", err)
		}
	}

	if err := cfg.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	return nil
}

// New returns a fully parsed Config object from a given file directory
func New(cfgFile string) (*Config, error) {
	viper.SetConfigFile(cfgFile)

	viper.AutomaticEnv()
	/*
		Nested keys are overridden from env by replacing `.` with `_` and `-` with `__`:
		1. `vault.address` can be overridden by `VAULT_ADDRESS`
		2. `vault.signer-key` can be overridden by `VAULT_SIGNER__KEY`
		Signer keys should only ever be provided this way.
	*/
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "__"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
