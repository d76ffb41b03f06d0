package rewards

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionWeight(t *testing.T) {
	w := PositionWeight(sdkmath.NewInt(1_000_000), dec(t, "1.5"), dec(t, "1.25"))
	assert.Equal(t, sdkmath.NewInt(1_875_000), w)

	w = PositionWeight(sdkmath.NewInt(7), sdkmath.LegacyOneDec(), sdkmath.LegacyOneDec())
	assert.Equal(t, sdkmath.NewInt(7), w)
}

func TestShareOf(t *testing.T) {
	t.Run("zero total weight", func(t *testing.T) {
		assert.True(t, ShareOf(sdkmath.NewInt(10), sdkmath.ZeroInt(), sdkmath.NewInt(100)).IsZero())
	})

	t.Run("large weights keep precision", func(t *testing.T) {
		total := sdkmath.NewIntWithDecimal(4, 26)
		user := sdkmath.NewIntWithDecimal(1, 26)
		fees := sdkmath.NewIntWithDecimal(4, 15)
		assert.Equal(t, sdkmath.NewIntWithDecimal(1, 15), ShareOf(user, total, fees))
	})

	t.Run("even shares are exact", func(t *testing.T) {
		assert.Equal(t, sdkmath.NewInt(1_000), ShareOf(sdkmath.NewInt(1_000), sdkmath.NewInt(9_000), sdkmath.NewInt(9_000)))
		assert.Equal(t, sdkmath.NewInt(3), ShareOf(sdkmath.NewInt(1), sdkmath.NewInt(3), sdkmath.NewInt(9)))
	})

	t.Run("never exceeds the pool", func(t *testing.T) {
		for range 100 {
			total := sdkmath.NewInt(int64(gofakeit.IntRange(1, 1<<50)))
			user := sdkmath.NewInt(int64(gofakeit.IntRange(0, int(total.Int64()))))
			fees := sdkmath.NewInt(int64(gofakeit.IntRange(0, 1<<50)))
			require.True(t, ShareOf(user, total, fees).LTE(fees))
		}
	})
}

func TestFeeRewards(t *testing.T) {
	r := NewResolver(DefaultParams())
	created := now.Add(-60 * day)
	positions := []Position{{ID: "p", Principal: sdkmath.NewInt(1_000), CreatedAt: created}}
	userWeight := sdkmath.NewInt(1_000)

	snapshots := []Snapshot{
		{ID: "s1", TotalFees: sdkmath.NewInt(10_000), TotalWeight: sdkmath.NewInt(4_000), PeriodEnd: now.Add(-30 * day)},
		{ID: "s2", TotalFees: sdkmath.NewInt(6_000), TotalWeight: sdkmath.NewInt(2_000), PeriodEnd: now.Add(-20 * day)},
		{ID: "s3", TotalFees: sdkmath.NewInt(9_000), TotalWeight: sdkmath.NewInt(9_000), PeriodEnd: now.Add(-10 * day)},
	}

	t.Run("sum over qualifying snapshots", func(t *testing.T) {
		// 1000/4000*10000 + 1000/2000*6000 + 1000/9000*9000
		expected := sdkmath.NewInt(2_500 + 3_000 + 1_000)
		assert.Equal(t, expected, r.FeeRewards(userWeight, positions, snapshots, nil, now))
	})

	t.Run("snapshots before the last claim are excluded", func(t *testing.T) {
		lastClaim := now.Add(-20 * day)
		assert.Equal(t, sdkmath.NewInt(1_000), r.FeeRewards(userWeight, positions, snapshots, &lastClaim, now))
	})

	t.Run("snapshots before the first position are excluded", func(t *testing.T) {
		late := []Position{{ID: "p", Principal: sdkmath.NewInt(1_000), CreatedAt: now.Add(-15 * day)}}
		assert.Equal(t, sdkmath.NewInt(1_000), r.FeeRewards(userWeight, late, snapshots, nil, now))
	})

	t.Run("future and expired snapshots are excluded", func(t *testing.T) {
		old := []Position{{ID: "p", Principal: sdkmath.NewInt(1_000), CreatedAt: now.Add(-1000 * day)}}
		edge := []Snapshot{
			{ID: "future", TotalFees: sdkmath.NewInt(1_000), TotalWeight: sdkmath.NewInt(1_000), PeriodEnd: now.Add(time.Minute)},
			{ID: "expired", TotalFees: sdkmath.NewInt(1_000), TotalWeight: sdkmath.NewInt(1_000), PeriodEnd: now.Add(-400 * day)},
		}
		assert.True(t, r.FeeRewards(userWeight, old, edge, nil, now).IsZero())
	})
}

func TestPoolWeight(t *testing.T) {
	r := NewResolver(DefaultParams())
	p := r.Params()

	byUser := map[string][]Position{
		// Gold: 50000 * 1.5
		"whale": {{ID: "w", Principal: p.Tokens(50_000), CreatedAt: now}},
		// Bronze: 100 * 1.0 * 2.0 + 100 * 1.0
		"small": {
			{ID: "s1", Principal: p.Tokens(100), LockPeriodDays: 180, CreatedAt: now},
			{ID: "s2", Principal: p.Tokens(100), CreatedAt: now},
		},
	}

	assert.Equal(t, p.Tokens(75_000+300), r.PoolWeight(byUser))
	assert.True(t, r.PoolWeight(nil).IsZero())
}

func TestFeePerWeight(t *testing.T) {
	assert.True(t, dec(t, "0.5").Equal(FeePerWeight(sdkmath.NewInt(50), sdkmath.NewInt(100))))
	assert.True(t, FeePerWeight(sdkmath.NewInt(50), sdkmath.ZeroInt()).IsZero())
}
