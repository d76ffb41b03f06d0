package rewards

import (
	"fmt"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/config"
)

// Tier is a reward bracket keyed by the total active principal of a user.
type Tier struct {
	Name string
	// MinStake is in the smallest token unit
	MinStake   sdkmath.Int
	Multiplier sdkmath.LegacyDec
}

// Band maps a participation rate below MaxRate to an APY multiplier. A nil
// MaxRate matches every rate.
type Band struct {
	MaxRate    *sdkmath.LegacyDec
	Multiplier sdkmath.LegacyDec
}

// Params is the immutable parameter set of the reward program. All token
// amounts are in the smallest token unit.
type Params struct {
	Decimals          uint32
	Unit              sdkmath.Int
	CirculatingSupply sdkmath.Int
	BaseAPY           sdkmath.LegacyDec
	Tiers             []Tier
	LockMultipliers   map[uint32]sdkmath.LegacyDec
	Bands             []Band

	MinClaimAmount       sdkmath.Int
	MinCompoundAmount    sdkmath.Int
	ClaimCooldown        time.Duration
	ReferralBonusPercent sdkmath.LegacyDec
	ReferralMinPayout    sdkmath.Int
	FeeShareRetention    time.Duration
}

// NewParams converts a validated staking config into reward params.
func NewParams(cfg *config.StakingConfig) (*Params, error) {
	unit := sdkmath.NewIntWithDecimal(1, int(cfg.TokenDecimals))

	p := &Params{
		Decimals:          cfg.TokenDecimals,
		Unit:              unit,
		LockMultipliers:   make(map[uint32]sdkmath.LegacyDec, len(cfg.LockPeriods)),
		ClaimCooldown:     cfg.ClaimCooldown,
		FeeShareRetention: cfg.FeeShareRetention,
	}

	var err error
	if p.CirculatingSupply, err = tokensToUnits(cfg.CirculatingSupply, unit); err != nil {
		return nil, fmt.Errorf("circulating supply: %w", err)
	}
	if p.BaseAPY, err = sdkmath.LegacyNewDecFromStr(cfg.BaseAPY); err != nil {
		return nil, fmt.Errorf("base apy: %w", err)
	}
	if p.MinClaimAmount, err = tokensToUnits(cfg.MinClaimAmount, unit); err != nil {
		return nil, fmt.Errorf("min claim amount: %w", err)
	}
	if p.MinCompoundAmount, err = tokensToUnits(cfg.MinCompoundAmount, unit); err != nil {
		return nil, fmt.Errorf("min compound amount: %w", err)
	}
	if p.ReferralMinPayout, err = tokensToUnits(cfg.ReferralMinPayout, unit); err != nil {
		return nil, fmt.Errorf("referral min payout: %w", err)
	}
	if p.ReferralBonusPercent, err = sdkmath.LegacyNewDecFromStr(cfg.ReferralBonusPercent); err != nil {
		return nil, fmt.Errorf("referral bonus percent: %w", err)
	}

	for _, t := range cfg.Tiers {
		minStake, err := tokensToUnits(t.MinStake, unit)
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", t.Name, err)
		}
		multiplier, err := sdkmath.LegacyNewDecFromStr(t.Multiplier)
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", t.Name, err)
		}
		p.Tiers = append(p.Tiers, Tier{Name: t.Name, MinStake: minStake, Multiplier: multiplier})
	}
	sort.SliceStable(p.Tiers, func(i, j int) bool {
		return p.Tiers[i].MinStake.LT(p.Tiers[j].MinStake)
	})

	for _, l := range cfg.LockPeriods {
		multiplier, err := sdkmath.LegacyNewDecFromStr(l.Multiplier)
		if err != nil {
			return nil, fmt.Errorf("lock period %d: %w", l.Days, err)
		}
		p.LockMultipliers[l.Days] = multiplier
	}

	for i, b := range cfg.ParticipationBands {
		band := Band{}
		if band.Multiplier, err = sdkmath.LegacyNewDecFromStr(b.Multiplier); err != nil {
			return nil, fmt.Errorf("participation band %d: %w", i, err)
		}
		if b.MaxRate != "" {
			maxRate, err := sdkmath.LegacyNewDecFromStr(b.MaxRate)
			if err != nil {
				return nil, fmt.Errorf("participation band %d: %w", i, err)
			}
			band.MaxRate = &maxRate
		}
		p.Bands = append(p.Bands, band)
	}

	return p, nil
}

// DefaultParams returns the params of an empty staking config with every
// default applied.
func DefaultParams() *Params {
	cfg := &config.StakingConfig{}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	p, err := NewParams(cfg)
	if err != nil {
		panic(err)
	}
	return p
}

// Tokens converts a whole token amount into the smallest unit.
func (p *Params) Tokens(amount int64) sdkmath.Int {
	return sdkmath.NewInt(amount).Mul(p.Unit)
}

func tokensToUnits(value string, unit sdkmath.Int) (sdkmath.Int, error) {
	dec, err := sdkmath.LegacyNewDecFromStr(value)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return dec.MulInt(unit).TruncateInt(), nil
}
