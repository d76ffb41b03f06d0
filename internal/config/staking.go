package config

import (
	"errors"
	"fmt"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"
)

const (
	defaultTokenDecimals        = 9
	defaultCirculatingSupply    = "1000000000"
	defaultBaseAPY              = "12"
	defaultMinClaimAmount       = "10"
	defaultMinCompoundAmount    = "100"
	defaultClaimCooldown        = 24 * time.Hour
	defaultReferralBonusPercent = "5"
	defaultReferralMinPayout    = "1"
	defaultFeeShareRetention    = 365 * 24 * time.Hour
)

// TierConfig is one row of the tier table. MinStake is expressed in whole
// tokens.
type TierConfig struct {
	Name       string `mapstructure:"name"`
	MinStake   string `mapstructure:"min-stake"`
	Multiplier string `mapstructure:"multiplier"`
}

type LockPeriodConfig struct {
	Days       uint32 `mapstructure:"days"`
	Multiplier string `mapstructure:"multiplier"`
}

// ParticipationBandConfig applies Multiplier when the participation rate is
// strictly below MaxRate. The last band has no MaxRate and catches the rest.
type ParticipationBandConfig struct {
	MaxRate    string `mapstructure:"max-rate"`
	Multiplier string `mapstructure:"multiplier"`
}

// StakingConfig holds the reward program parameters. Token amounts are in
// whole tokens and are scaled by TokenDecimals when the reward params are
// built.
type StakingConfig struct {
	TokenDecimals      uint32                    `mapstructure:"token-decimals"`
	CirculatingSupply  string                    `mapstructure:"circulating-supply"`
	BaseAPY            string                    `mapstructure:"base-apy"`
	Tiers              []TierConfig              `mapstructure:"tiers"`
	LockPeriods        []LockPeriodConfig        `mapstructure:"lock-periods"`
	ParticipationBands []ParticipationBandConfig `mapstructure:"participation-bands"`

	MinClaimAmount       string        `mapstructure:"min-claim-amount"`
	MinCompoundAmount    string        `mapstructure:"min-compound-amount"`
	ClaimCooldown        time.Duration `mapstructure:"claim-cooldown"`
	ReferralBonusPercent string        `mapstructure:"referral-bonus-percent"`
	ReferralMinPayout    string        `mapstructure:"referral-min-payout"`
	FeeShareRetention    time.Duration `mapstructure:"fee-share-retention"`
}

func DefaultTiers() []TierConfig {
	return []TierConfig{
		{Name: "Bronze", MinStake: "0", Multiplier: "1.0"},
		{Name: "Silver", MinStake: "10000", Multiplier: "1.2"},
		{Name: "Gold", MinStake: "50000", Multiplier: "1.5"},
		{Name: "Platinum", MinStake: "200000", Multiplier: "2.0"},
	}
}

func DefaultLockPeriods() []LockPeriodConfig {
	return []LockPeriodConfig{
		{Days: 0, Multiplier: "1.0"},
		{Days: 30, Multiplier: "1.25"},
		{Days: 90, Multiplier: "1.5"},
		{Days: 180, Multiplier: "2.0"},
	}
}

func DefaultParticipationBands() []ParticipationBandConfig {
	return []ParticipationBandConfig{
		{MaxRate: "0.1", Multiplier: "1.3"},
		{MaxRate: "0.3", Multiplier: "1.0"},
		{MaxRate: "0.5", Multiplier: "0.85"},
		{Multiplier: "0.7"},
	}
}

func (cfg *StakingConfig) Validate() error {
	cfg.fillDefaults()

	if cfg.TokenDecimals > 18 {
		return errors.New("token-decimals must not exceed 18")
	}
	if _, err := parsePositiveDec(cfg.CirculatingSupply); err != nil {
		return fmt.Errorf("invalid circulating-supply: %w", err)
	}
	if _, err := parsePositiveDec(cfg.BaseAPY); err != nil {
		return fmt.Errorf("invalid base-apy: %w", err)
	}

	if err := cfg.validateTiers(); err != nil {
		return err
	}
	if err := cfg.validateLockPeriods(); err != nil {
		return err
	}
	if err := cfg.validateBands(); err != nil {
		return err
	}

	amounts := map[string]string{
		"min-claim-amount":       cfg.MinClaimAmount,
		"min-compound-amount":    cfg.MinCompoundAmount,
		"referral-bonus-percent": cfg.ReferralBonusPercent,
		"referral-min-payout":    cfg.ReferralMinPayout,
	}
	for name, value := range amounts {
		if _, err := parseNonNegativeDec(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

func (cfg *StakingConfig) fillDefaults() {
	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = defaultTokenDecimals
	}
	if cfg.CirculatingSupply == "" {
		cfg.CirculatingSupply = defaultCirculatingSupply
	}
	if cfg.BaseAPY == "" {
		cfg.BaseAPY = defaultBaseAPY
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultTiers()
	}
	if len(cfg.LockPeriods) == 0 {
		cfg.LockPeriods = DefaultLockPeriods()
	}
	if len(cfg.ParticipationBands) == 0 {
		cfg.ParticipationBands = DefaultParticipationBands()
	}
	if cfg.MinClaimAmount == "" {
		cfg.MinClaimAmount = defaultMinClaimAmount
	}
	if cfg.MinCompoundAmount == "" {
		cfg.MinCompoundAmount = defaultMinCompoundAmount
	}
	if cfg.ClaimCooldown <= 0 {
		cfg.ClaimCooldown = defaultClaimCooldown
	}
	if cfg.ReferralBonusPercent == "" {
		cfg.ReferralBonusPercent = defaultReferralBonusPercent
	}
	if cfg.ReferralMinPayout == "" {
		cfg.ReferralMinPayout = defaultReferralMinPayout
	}
	if cfg.FeeShareRetention <= 0 {
		cfg.FeeShareRetention = defaultFeeShareRetention
	}
}

func (cfg *StakingConfig) validateTiers() error {
	names := make(map[string]struct{}, len(cfg.Tiers))
	hasZero := false
	for _, tier := range cfg.Tiers {
		if tier.Name == "" {
			return errors.New("tier name cannot be empty")
		}
		if _, ok := names[tier.Name]; ok {
			return fmt.Errorf("duplicate tier %s", tier.Name)
		}
		names[tier.Name] = struct{}{}

		minStake, err := parseNonNegativeDec(tier.MinStake)
		if err != nil {
			return fmt.Errorf("invalid min-stake for tier %s: %w", tier.Name, err)
		}
		if minStake.IsZero() {
			hasZero = true
		}
		if _, err := parsePositiveDec(tier.Multiplier); err != nil {
			return fmt.Errorf("invalid multiplier for tier %s: %w", tier.Name, err)
		}
	}
	if !hasZero {
		return errors.New("one tier must have a min-stake of 0")
	}

	// rows may be given in any order, the resolver relies on ascending order
	sort.SliceStable(cfg.Tiers, func(i, j int) bool {
		a, _ := sdkmath.LegacyNewDecFromStr(cfg.Tiers[i].MinStake)
		b, _ := sdkmath.LegacyNewDecFromStr(cfg.Tiers[j].MinStake)
		return a.LT(b)
	})

	return nil
}

func (cfg *StakingConfig) validateLockPeriods() error {
	days := make(map[uint32]struct{}, len(cfg.LockPeriods))
	for _, period := range cfg.LockPeriods {
		if _, ok := days[period.Days]; ok {
			return fmt.Errorf("duplicate lock period %d", period.Days)
		}
		days[period.Days] = struct{}{}
		if _, err := parsePositiveDec(period.Multiplier); err != nil {
			return fmt.Errorf("invalid multiplier for lock period %d: %w", period.Days, err)
		}
	}
	return nil
}

func (cfg *StakingConfig) validateBands() error {
	last := len(cfg.ParticipationBands) - 1
	prev := sdkmath.LegacyZeroDec()
	for i, band := range cfg.ParticipationBands {
		if _, err := parsePositiveDec(band.Multiplier); err != nil {
			return fmt.Errorf("invalid multiplier for participation band %d: %w", i, err)
		}
		if i == last {
			if band.MaxRate != "" {
				return errors.New("last participation band must not have a max-rate")
			}
			continue
		}
		maxRate, err := parsePositiveDec(band.MaxRate)
		if err != nil {
			return fmt.Errorf("invalid max-rate for participation band %d: %w", i, err)
		}
		if !maxRate.GT(prev) {
			return errors.New("participation bands must be ordered by ascending max-rate")
		}
		prev = maxRate
	}
	return nil
}

func parseNonNegativeDec(value string) (sdkmath.LegacyDec, error) {
	dec, err := sdkmath.LegacyNewDecFromStr(value)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if dec.IsNegative() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%s must not be negative", value)
	}
	return dec, nil
}

func parsePositiveDec(value string) (sdkmath.LegacyDec, error) {
	dec, err := parseNonNegativeDec(value)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if dec.IsZero() {
		return sdkmath.LegacyDec{}, errors.New("must be positive")
	}
	return dec, nil
}
