package rewards

import (
	"sort"

	sdkmath "cosmossdk.io/math"
)

var hundred = sdkmath.LegacyNewDec(100)

// Resolver answers tier, lock and participation questions from an
// immutable parameter set. It is safe for concurrent use.
type Resolver struct {
	params *Params
}

func NewResolver(params *Params) *Resolver {
	return &Resolver{params: params}
}

func (r *Resolver) Params() *Params {
	return r.params
}

// TierFor returns the highest tier whose minimum stake is met.
func (r *Resolver) TierFor(totalStaked sdkmath.Int) Tier {
	tiers := r.params.Tiers
	selected := tiers[0]
	for _, tier := range tiers[1:] {
		if totalStaked.GTE(tier.MinStake) {
			selected = tier
		}
	}
	return selected
}

// NextTier returns the tier following the given one, false for the top tier.
func (r *Resolver) NextTier(tier Tier) (Tier, bool) {
	for i, t := range r.params.Tiers {
		if t.Name == tier.Name && i+1 < len(r.params.Tiers) {
			return r.params.Tiers[i+1], true
		}
	}
	return Tier{}, false
}

// AmountToNextTier is the principal missing to reach the next tier, zero
// when the top tier is reached.
func (r *Resolver) AmountToNextTier(totalStaked sdkmath.Int) sdkmath.Int {
	next, ok := r.NextTier(r.TierFor(totalStaked))
	if !ok {
		return sdkmath.ZeroInt()
	}
	return next.MinStake.Sub(totalStaked)
}

// LockMultiplier defaults to 1.0 for durations without an entry.
func (r *Resolver) LockMultiplier(days uint32) sdkmath.LegacyDec {
	if m, ok := r.params.LockMultipliers[days]; ok {
		return m
	}
	return sdkmath.LegacyOneDec()
}

func (r *Resolver) IsValidLockPeriod(days uint32) bool {
	_, ok := r.params.LockMultipliers[days]
	return ok
}

// LockPeriods lists the accepted lock durations in days, ascending.
func (r *Resolver) LockPeriods() []uint32 {
	days := make([]uint32, 0, len(r.params.LockMultipliers))
	for d := range r.params.LockMultipliers {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// ParticipationRate is total staked over circulating supply.
func (r *Resolver) ParticipationRate(totalStaked sdkmath.Int) sdkmath.LegacyDec {
	if !r.params.CirculatingSupply.IsPositive() {
		return sdkmath.LegacyZeroDec()
	}
	return sdkmath.LegacyNewDecFromInt(totalStaked).QuoInt(r.params.CirculatingSupply)
}

// ParticipationMultiplier returns the multiplier of the first band whose
// max rate is strictly above the given rate.
func (r *Resolver) ParticipationMultiplier(rate sdkmath.LegacyDec) sdkmath.LegacyDec {
	for _, band := range r.params.Bands {
		if band.MaxRate == nil || rate.LT(*band.MaxRate) {
			return band.Multiplier
		}
	}
	return sdkmath.LegacyOneDec()
}

// DynamicAPY is the base APY adjusted by the participation multiplier, in
// percent.
func (r *Resolver) DynamicAPY(rate sdkmath.LegacyDec) sdkmath.LegacyDec {
	return r.params.BaseAPY.Mul(r.ParticipationMultiplier(rate))
}

// EffectiveAPY in percent for a position of the given tier and lock.
func (r *Resolver) EffectiveAPY(dynamicMultiplier sdkmath.LegacyDec, tier Tier, lockDays uint32) sdkmath.LegacyDec {
	return r.params.BaseAPY.
		Mul(dynamicMultiplier).
		Mul(tier.Multiplier).
		Mul(r.LockMultiplier(lockDays))
}

// ReferralBonus returns the bonus owed to the referrer for a claim, false
// when it is below the payout floor.
func (r *Resolver) ReferralBonus(claimed sdkmath.Int) (sdkmath.Int, bool) {
	bonus := r.params.ReferralBonusPercent.MulInt(claimed).Quo(hundred).TruncateInt()
	if !bonus.IsPositive() || bonus.LT(r.params.ReferralMinPayout) {
		return sdkmath.ZeroInt(), false
	}
	return bonus, true
}
