package rewards

import (
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
)

const yearMillis = 365 * 24 * int64(time.Hour/time.Millisecond)

// Position is the accrual view of a stake position.
type Position struct {
	ID             string
	Principal      sdkmath.Int
	LockPeriodDays uint32
	CreatedAt      time.Time
	LastClaimedAt  *time.Time
}

// Since is the start of the position's current accrual window. A claim
// time before the position existed does not reach back past its creation.
func (p Position) Since() time.Time {
	if p.LastClaimedAt != nil && p.LastClaimedAt.After(p.CreatedAt) {
		return *p.LastClaimedAt
	}
	return p.CreatedAt
}

// AccrualInput is everything the engine needs to compute one user's
// unclaimed rewards.
type AccrualInput struct {
	Positions         []Position
	ParticipationRate sdkmath.LegacyDec
	Snapshots         []Snapshot
	Now               time.Time
}

type Accrual struct {
	TotalStaked       sdkmath.Int
	Tier              Tier
	DynamicMultiplier sdkmath.LegacyDec
	Weight            sdkmath.Int
	PerPosition       map[string]sdkmath.Int
	BaseRewards       sdkmath.Int
	FeeRewards        sdkmath.Int
	// LastClaim is the latest claim time across the positions, nil when
	// none was ever claimed
	LastClaim *time.Time
}

func (a Accrual) Total() sdkmath.Int {
	return a.BaseRewards.Add(a.FeeRewards)
}

// TotalStaked sums the principal of the given positions.
func TotalStaked(positions []Position) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, p := range positions {
		total = total.Add(p.Principal)
	}
	return total
}

// LastClaim returns the latest last-claimed time of the positions.
func LastClaim(positions []Position) *time.Time {
	var last *time.Time
	for _, p := range positions {
		if p.LastClaimedAt == nil {
			continue
		}
		if last == nil || p.LastClaimedAt.After(*last) {
			t := *p.LastClaimedAt
			last = &t
		}
	}
	return last
}

// Accrue computes the base and fee-share rewards owed on the positions of
// one user. The tier comes from the current total principal, not from the
// principal held over the accrual window.
func (r *Resolver) Accrue(in AccrualInput) Accrual {
	totalStaked := TotalStaked(in.Positions)
	tier := r.TierFor(totalStaked)
	dynamic := r.ParticipationMultiplier(in.ParticipationRate)

	perPosition, base := r.AccrueBase(in.Positions, tier, dynamic, in.Now)

	weight := r.UserWeight(in.Positions, tier)
	lastClaim := LastClaim(in.Positions)
	fees := r.FeeRewards(weight, in.Positions, in.Snapshots, lastClaim, in.Now)

	return Accrual{
		TotalStaked:       totalStaked,
		Tier:              tier,
		DynamicMultiplier: dynamic,
		Weight:            weight,
		PerPosition:       perPosition,
		BaseRewards:       base,
		FeeRewards:        fees,
		LastClaim:         lastClaim,
	}
}

// AccrueBase computes the APY rewards of each position since its last claim
// (or creation) and their sum:
//
//	reward = principal * effectiveAPY/100 * elapsed/365d
//
// The product is evaluated in integers and truncated once, so it never
// rounds up.
func (r *Resolver) AccrueBase(positions []Position, tier Tier, dynamicMultiplier sdkmath.LegacyDec, now time.Time) (map[string]sdkmath.Int, sdkmath.Int) {
	perPosition := make(map[string]sdkmath.Int, len(positions))
	total := sdkmath.ZeroInt()

	for _, p := range positions {
		reward := baseReward(
			p.Principal,
			r.EffectiveAPY(dynamicMultiplier, tier, p.LockPeriodDays),
			now.Sub(p.Since()),
		)
		perPosition[p.ID] = reward
		total = total.Add(reward)
	}

	return perPosition, total
}

func baseReward(principal sdkmath.Int, apy sdkmath.LegacyDec, elapsed time.Duration) sdkmath.Int {
	if elapsed <= 0 || !principal.IsPositive() || !apy.IsPositive() {
		return sdkmath.ZeroInt()
	}

	// apy.BigInt() is the percentage scaled by 10^18
	num := new(big.Int).Mul(principal.BigInt(), apy.BigInt())
	num.Mul(num, big.NewInt(elapsed.Milliseconds()))

	den := new(big.Int).Mul(big.NewInt(100*yearMillis), sdkmath.LegacyOneDec().BigInt())

	return sdkmath.NewIntFromBigInt(num.Quo(num, den))
}
