package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	defaultLockWaitTimeout = 10 * time.Second
	defaultTxTimeout       = 60 * time.Second
)

type DbConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DbName   string `mapstructure:"db-name"`
	Address  string `mapstructure:"address"`
	// LockWaitTimeout bounds how long an operation keeps retrying to lock
	// the position rows it wants to mutate.
	LockWaitTimeout time.Duration `mapstructure:"lock-wait-timeout"`
	// TxTimeout bounds the whole locked transaction, settlement call included.
	TxTimeout time.Duration `mapstructure:"tx-timeout"`
}

func (cfg *DbConfig) Validate() error {
	if cfg.DbName == "" {
		return errors.New("database name cannot be empty")
	}

	if cfg.Address == "" {
		return errors.New("database address cannot be empty")
	}

	if _, err := url.Parse(cfg.Address); err != nil {
		return fmt.Errorf("invalid database address: %w", err)
	}

	if cfg.LockWaitTimeout <= 0 {
		cfg.LockWaitTimeout = defaultLockWaitTimeout
	}

	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = defaultTxTimeout
	}

	if cfg.LockWaitTimeout >= cfg.TxTimeout {
		return errors.New("lock-wait-timeout must be shorter than tx-timeout")
	}

	return nil
}
