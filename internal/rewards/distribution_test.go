package rewards

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	ratios := SplitRatios{Burn: 5, Liquidity: 40, Staking: 40, Grants: 20, FeeShare: 50}

	t.Run("weekly distribution of 10000", func(t *testing.T) {
		s := ratios.Split(sdkmath.NewInt(10_000))
		assert.Equal(t, sdkmath.NewInt(500), s.Burn)
		assert.Equal(t, sdkmath.NewInt(9_500), s.Distributable)
		assert.Equal(t, sdkmath.NewInt(3_800), s.Liquidity)
		assert.Equal(t, sdkmath.NewInt(3_800), s.Staking)
		assert.Equal(t, sdkmath.NewInt(1_900), s.VaultRefill)
		assert.Equal(t, sdkmath.NewInt(1_900), s.FeeShare)
		assert.Equal(t, sdkmath.NewInt(1_900), s.Grants)
	})

	t.Run("remainders stay in the treasury", func(t *testing.T) {
		total := sdkmath.NewInt(10_007)
		s := ratios.Split(total)
		spent := s.Burn.Add(s.Liquidity).Add(s.VaultRefill).Add(s.FeeShare).Add(s.Grants)
		assert.True(t, spent.LTE(total))
		assert.True(t, s.VaultRefill.Add(s.FeeShare).LTE(s.Staking))
	})
}
