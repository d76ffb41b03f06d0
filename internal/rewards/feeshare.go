package rewards

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

var weightScale = sdkmath.NewInt(1_000)

// Snapshot is the fee-share pool of one treasury distribution cycle.
type Snapshot struct {
	ID          string
	TotalFees   sdkmath.Int
	TotalWeight sdkmath.Int
	PeriodEnd   time.Time
}

// scaled returns round(m * 1000) as an integer.
func scaled(m sdkmath.LegacyDec) sdkmath.Int {
	return m.MulInt(weightScale).RoundInt()
}

// PositionWeight = principal * tier * lock, with both multipliers applied
// as integers scaled by 1000.
func PositionWeight(principal sdkmath.Int, tierMultiplier, lockMultiplier sdkmath.LegacyDec) sdkmath.Int {
	return principal.
		Mul(scaled(tierMultiplier)).
		Mul(scaled(lockMultiplier)).
		Quo(weightScale).
		Quo(weightScale)
}

// UserWeight sums the weights of one user's positions under the given tier.
func (r *Resolver) UserWeight(positions []Position, tier Tier) sdkmath.Int {
	weight := sdkmath.ZeroInt()
	for _, p := range positions {
		weight = weight.Add(PositionWeight(p.Principal, tier.Multiplier, r.LockMultiplier(p.LockPeriodDays)))
	}
	return weight
}

// PoolWeight sums user weights over the whole pool. Each user's tier is
// resolved from that user's own total principal.
func (r *Resolver) PoolWeight(byUser map[string][]Position) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, positions := range byUser {
		total = total.Add(r.UserWeight(positions, r.TierFor(TotalStaked(positions))))
	}
	return total
}

// ShareOf returns the fees owed for userWeight out of totalWeight:
//
//	reward = userWeight * totalFees / totalWeight
//
// The single division truncates once, so shares that divide evenly come out
// exact.
func ShareOf(userWeight, totalWeight, totalFees sdkmath.Int) sdkmath.Int {
	if !totalWeight.IsPositive() || !userWeight.IsPositive() || !totalFees.IsPositive() {
		return sdkmath.ZeroInt()
	}
	return userWeight.Mul(totalFees).Quo(totalWeight)
}

// FeePerWeight is the informational fee per weight unit of a snapshot.
func FeePerWeight(totalFees, totalWeight sdkmath.Int) sdkmath.LegacyDec {
	if !totalWeight.IsPositive() {
		return sdkmath.LegacyZeroDec()
	}
	return sdkmath.LegacyNewDecFromInt(totalFees).QuoInt(totalWeight)
}

// Qualifies reports whether a snapshot still owes a share to a user whose
// last claim is lastClaim.
func (r *Resolver) Qualifies(s Snapshot, positions []Position, lastClaim *time.Time, now time.Time) bool {
	if lastClaim != nil && !s.PeriodEnd.After(*lastClaim) {
		return false
	}
	if s.PeriodEnd.After(now) {
		return false
	}
	if r.params.FeeShareRetention > 0 && s.PeriodEnd.Before(now.Add(-r.params.FeeShareRetention)) {
		return false
	}
	for _, p := range positions {
		if p.CreatedAt.Before(s.PeriodEnd) {
			return true
		}
	}
	return false
}

// FeeRewards sums the user's share over every qualifying snapshot.
func (r *Resolver) FeeRewards(userWeight sdkmath.Int, positions []Position, snapshots []Snapshot, lastClaim *time.Time, now time.Time) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, s := range snapshots {
		if !r.Qualifies(s, positions, lastClaim, now) {
			continue
		}
		total = total.Add(ShareOf(userWeight, s.TotalWeight, s.TotalFees))
	}
	return total
}
