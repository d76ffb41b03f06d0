package rewards

import (
	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/config"
)

// SplitRatios are the treasury distribution percentages. Liquidity, staking
// and grants are percentages of what is left after the burn, fee share is a
// percentage of the staking bucket.
type SplitRatios struct {
	Burn      uint64
	Liquidity uint64
	Staking   uint64
	Grants    uint64
	FeeShare  uint64
}

func NewSplitRatios(cfg *config.TreasuryConfig) SplitRatios {
	return SplitRatios{
		Burn:      cfg.BurnPercent,
		Liquidity: cfg.LiquidityPercent,
		Staking:   cfg.StakingPercent,
		Grants:    cfg.GrantsPercent,
		FeeShare:  cfg.FeeSharePercent,
	}
}

type Split struct {
	Total         sdkmath.Int
	Burn          sdkmath.Int
	Distributable sdkmath.Int
	Liquidity     sdkmath.Int
	Staking       sdkmath.Int
	VaultRefill   sdkmath.Int
	FeeShare      sdkmath.Int
	Grants        sdkmath.Int
}

func percentOf(amount sdkmath.Int, percent uint64) sdkmath.Int {
	return amount.Mul(sdkmath.NewIntFromUint64(percent)).QuoRaw(100)
}

// Split divides total with integer division. Rounding remainders are not
// assigned to any bucket and stay in the treasury.
func (r SplitRatios) Split(total sdkmath.Int) Split {
	burn := percentOf(total, r.Burn)
	distributable := total.Sub(burn)
	staking := percentOf(distributable, r.Staking)

	return Split{
		Total:         total,
		Burn:          burn,
		Distributable: distributable,
		Liquidity:     percentOf(distributable, r.Liquidity),
		Staking:       staking,
		VaultRefill:   percentOf(staking, 100-r.FeeShare),
		FeeShare:      percentOf(staking, r.FeeShare),
		Grants:        percentOf(distributable, r.Grants),
	}
}
