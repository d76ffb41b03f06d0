package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	defaultSolanaTimeout        = 30 * time.Second
	defaultSolanaMaxRetryTimes  = 3
	defaultSolanaRetryInterval  = 500 * time.Millisecond
	defaultSolanaConfirmTimeout = 30 * time.Second
)

// SolanaConfig defines the connection to the settlement network.
type SolanaConfig struct {
	RPCAddr string `mapstructure:"rpc-addr"`
	// Timeout is applied to every single rpc call
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetryTimes and RetryInterval only apply to read calls, a
	// transaction is never re-sent
	MaxRetryTimes  uint          `mapstructure:"max-retry-times"`
	RetryInterval  time.Duration `mapstructure:"retry-interval"`
	ConfirmTimeout time.Duration `mapstructure:"confirm-timeout"`
	Commitment     string        `mapstructure:"commitment"`
	TokenMint      string        `mapstructure:"token-mint"`
}

func (cfg *SolanaConfig) Validate() error {
	if cfg.RPCAddr == "" {
		return errors.New("rpc address cannot be empty")
	}

	if _, err := solana.PublicKeyFromBase58(cfg.TokenMint); err != nil {
		return fmt.Errorf("invalid token mint: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSolanaTimeout
	}
	if cfg.MaxRetryTimes == 0 {
		cfg.MaxRetryTimes = defaultSolanaMaxRetryTimes
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultSolanaRetryInterval
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultSolanaConfirmTimeout
	}

	switch rpc.CommitmentType(cfg.Commitment) {
	case "":
		cfg.Commitment = string(rpc.CommitmentConfirmed)
	case rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("unsupported commitment %q, use confirmed or finalized", cfg.Commitment)
	}

	return nil
}

// VaultConfig is the staking vault: the settlement source for claims and
// unstakes and the destination of every stake deposit.
type VaultConfig struct {
	Address string `mapstructure:"address"`
	// SignerKey is the base58 private key of the vault owner. Without it
	// payouts from the vault are disabled.
	SignerKey string `mapstructure:"signer-key"`
	// Reconciliation thresholds, in percent of the ledger balance
	WarningThresholdPercent  string `mapstructure:"warning-threshold-percent"`
	CriticalThresholdPercent string `mapstructure:"critical-threshold-percent"`
}

func (cfg *VaultConfig) Validate() error {
	address, err := solana.PublicKeyFromBase58(cfg.Address)
	if err != nil {
		return fmt.Errorf("invalid vault address: %w", err)
	}

	if cfg.SignerKey != "" {
		key, err := solana.PrivateKeyFromBase58(cfg.SignerKey)
		if err != nil {
			return fmt.Errorf("invalid vault signer key: %w", err)
		}
		if !key.PublicKey().Equals(address) {
			return errors.New("vault signer key does not match vault address")
		}
	}

	if cfg.WarningThresholdPercent == "" {
		cfg.WarningThresholdPercent = "1"
	}
	if cfg.CriticalThresholdPercent == "" {
		cfg.CriticalThresholdPercent = "5"
	}

	warning, err := parsePositiveDec(cfg.WarningThresholdPercent)
	if err != nil {
		return fmt.Errorf("invalid warning-threshold-percent: %w", err)
	}
	critical, err := parsePositiveDec(cfg.CriticalThresholdPercent)
	if err != nil {
		return fmt.Errorf("invalid critical-threshold-percent: %w", err)
	}
	if critical.LT(warning) {
		return errors.New("critical-threshold-percent must not be lower than warning-threshold-percent")
	}

	return nil
}

// TreasuryConfig defines the protocol treasury wallet and the destinations
// of the weekly distribution.
type TreasuryConfig struct {
	// SignerKey is the base58 private key of the treasury. Without it the
	// weekly distribution and referral bonuses are disabled.
	SignerKey          string `mapstructure:"signer-key"`
	LiquidityWallet    string `mapstructure:"liquidity-wallet"`
	StakingVaultWallet string `mapstructure:"staking-vault-wallet"`
	GrantsWallet       string `mapstructure:"grants-wallet"`

	BurnPercent      uint64 `mapstructure:"burn-percent"`
	LiquidityPercent uint64 `mapstructure:"liquidity-percent"`
	StakingPercent   uint64 `mapstructure:"staking-percent"`
	GrantsPercent    uint64 `mapstructure:"grants-percent"`
	// FeeSharePercent is the part of the staking bucket that is kept in the
	// treasury and credited to stakers pro-rata through a fee snapshot
	FeeSharePercent uint64 `mapstructure:"fee-share-percent"`
}

func (cfg *TreasuryConfig) Validate() error {
	if cfg.SignerKey != "" {
		if _, err := solana.PrivateKeyFromBase58(cfg.SignerKey); err != nil {
			return fmt.Errorf("invalid treasury signer key: %w", err)
		}
	}

	wallets := map[string]string{
		"liquidity-wallet":     cfg.LiquidityWallet,
		"staking-vault-wallet": cfg.StakingVaultWallet,
		"grants-wallet":        cfg.GrantsWallet,
	}
	for name, wallet := range wallets {
		if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if cfg.BurnPercent == 0 && cfg.LiquidityPercent == 0 && cfg.StakingPercent == 0 && cfg.GrantsPercent == 0 {
		cfg.BurnPercent = 5
		cfg.LiquidityPercent = 40
		cfg.StakingPercent = 40
		cfg.GrantsPercent = 20
	}
	if cfg.FeeSharePercent == 0 {
		cfg.FeeSharePercent = 50
	}

	if cfg.BurnPercent >= 100 {
		return errors.New("burn-percent must be lower than 100")
	}
	if sum := cfg.LiquidityPercent + cfg.StakingPercent + cfg.GrantsPercent; sum != 100 {
		return fmt.Errorf("liquidity, staking and grants percents must add up to 100, got %d", sum)
	}
	if cfg.FeeSharePercent > 100 {
		return errors.New("fee-share-percent must not exceed 100")
	}

	return nil
}
