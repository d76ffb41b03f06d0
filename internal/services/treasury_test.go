package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mvgalabs/staking-rewards-service/internal/clients/solclient"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
	"github.com/mvgalabs/staking-rewards-service/testutil"
)

func (e *testEnv) seedFees(t *testing.T, amounts ...int64) {
	t.Helper()

	for _, amount := range amounts {
		fee := testutil.GenerateFee(e.tokens(amount), e.clock.Now())
		require.NoError(t, e.store.SaveFeeCollection(t.Context(), fee))
	}
}

func (e *testEnv) treasuryBalances() {
	e.treasury.On("GetBalance", mock.Anything, mock.Anything).Return(e.tokens(1_000), nil).Maybe()
}

// expectStep mocks the treasury call of a transfer step. The signed hook
// runs whenever ref is set.
func (e *testEnv) expectStep(t *testing.T, name types.DistributionStepName, amount sdkmath.Int, ref string, err error) {
	if name == types.StepBurn {
		call := e.treasury.On("Burn", mock.Anything, amountEq(amount), mock.Anything).Return(ref, err).Once()
		if ref != "" {
			call.Run(runHook(t, ref, 2))
		}
		return
	}

	destinations := map[types.DistributionStepName]string{
		types.StepLiquidity: e.cfg.Treasury.LiquidityWallet,
		types.StepStaking:   e.cfg.Treasury.StakingVaultWallet,
		types.StepGrants:    e.cfg.Treasury.GrantsWallet,
	}
	call := e.treasury.On("Transfer", mock.Anything, destinations[name], amountEq(amount), mock.Anything).Return(ref, err).Once()
	if ref != "" {
		call.Run(runHook(t, ref, 3))
	}
}

func (e *testEnv) expectAllSteps(t *testing.T, failing ...types.DistributionStepName) {
	amounts := map[types.DistributionStepName]int64{
		types.StepBurn:      500,
		types.StepLiquidity: 3_800,
		types.StepStaking:   1_900,
		types.StepGrants:    1_900,
	}
	for name, amount := range amounts {
		var err error
		ref := fmt.Sprintf("%s-sig", name)
		for _, f := range failing {
			if f == name {
				ref, err = "", errors.New("transfer rejected")
			}
		}
		e.expectStep(t, name, e.tokens(amount), ref, err)
	}
}

func stepStatuses(d *model.TreasuryDistribution) map[types.DistributionStepName]types.StepStatus {
	out := make(map[types.DistributionStepName]types.StepStatus, len(d.Steps))
	for _, step := range d.Steps {
		out[step.Name] = step.Status
	}
	return out
}

func TestRecordFee(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)

	fee, err := env.svc.RecordFee(ctx, RecordFeeRequest{
		Source:      types.FeeSourceSwap,
		Amount:      env.tokens(250),
		Token:       "USDC",
		TxReference: "swap-1",
	})
	require.Nil(t, err)
	assert.False(t, fee.Collected)

	_, err = env.svc.RecordFee(ctx, RecordFeeRequest{Source: types.FeeSourceSwap, Amount: env.tokens(1), TxReference: "swap-1"})
	require.NotNil(t, err)
	assert.Equal(t, types.ConflictError, err.ErrorCode)

	_, err = env.svc.RecordFee(ctx, RecordFeeRequest{Source: "LOTTERY", Amount: env.tokens(1)})
	require.NotNil(t, err)
	assert.Equal(t, types.ValidationError, err.ErrorCode)

	_, err = env.svc.RecordFee(ctx, RecordFeeRequest{Source: types.FeeSourceYield, Amount: sdkmath.ZeroInt()})
	require.NotNil(t, err)
	assert.Equal(t, types.ValidationError, err.ErrorCode)
}

func TestDistribution(t *testing.T) {
	ctx := t.Context()

	t.Run("splits collected fees", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedPosition(t, testutil.RandomUserID(), env.tokens(100_000), 0, false)
		env.seedFees(t, 6_000, 4_000)
		env.clock.Advance(7 * 24 * time.Hour)
		env.expectAllSteps(t)
		env.treasuryBalances()

		d, err := env.svc.distribute(ctx, true)
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, types.DistributionCompleted, d.Status)
		assert.True(t, d.TotalAmount.Equal(env.tokens(10_000)))
		assert.True(t, d.FeeShareAmount.Equal(env.tokens(1_900)))
		for name, status := range stepStatuses(d) {
			assert.Equal(t, types.StepCompleted, status, name.String())
		}

		snapshot, err := env.store.GetFeeSnapshotByDistribution(ctx, d.ID)
		require.NoError(t, err)
		assert.True(t, snapshot.TotalFees.Equal(env.tokens(1_900)))
		assert.Equal(t, snapshot.ID, d.FeeSnapshotID)
		assert.Equal(t, d.PeriodEnd, snapshot.PeriodEnd)

		uncollected, err := env.store.FindUncollectedFees(ctx)
		require.NoError(t, err)
		assert.Empty(t, uncollected)

		balance, err := env.store.GetLatestTreasuryBalance(ctx)
		require.NoError(t, err)
		assert.Equal(t, d.ID, balance.DistributionID)
		assert.True(t, balance.TotalRevenue.Equal(env.tokens(10_000)))
		assert.True(t, balance.StakingVault.Equal(env.tokens(1_000)))

		burn, ok := env.store.TransactionLog("BURN-sig")
		require.True(t, ok)
		assert.Equal(t, types.TxTypeBurn, burn.Type)
		assert.Equal(t, treasuryOwner, burn.WalletAddress)

		stored, err := env.store.GetLatestDistribution(ctx)
		require.NoError(t, err)
		assert.Equal(t, "LIQUIDITY-sig", stored.Step(types.StepLiquidity).TxReference)
	})

	t.Run("fee share accrues to stakers", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		env.seedPosition(t, user, env.tokens(100_000), 0, false)
		env.seedFees(t, 10_000)
		env.clock.Advance(7 * 24 * time.Hour)
		env.expectAllSteps(t)
		env.treasuryBalances()

		_, err := env.svc.distribute(ctx, true)
		require.NoError(t, err)

		summary, serr := env.svc.GetPosition(ctx, user)
		require.Nil(t, serr)
		// the only staker owns the whole pool weight
		assert.True(t, summary.FeeRewards.Equal(env.tokens(1_900)))
	})

	t.Run("failed burn does not fail the cycle", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedPosition(t, testutil.RandomUserID(), env.tokens(100_000), 0, false)
		env.seedFees(t, 10_000)
		env.expectAllSteps(t, types.StepBurn)
		env.treasuryBalances()

		d, err := env.svc.distribute(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, types.DistributionCompleted, d.Status)
		assert.Equal(t, types.StepFailed, stepStatuses(d)[types.StepBurn])
		assert.Contains(t, d.Step(types.StepBurn).Error, "transfer rejected")
	})

	t.Run("failed liquidity transfer fails the cycle", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedPosition(t, testutil.RandomUserID(), env.tokens(100_000), 0, false)
		env.seedFees(t, 10_000)
		env.expectAllSteps(t, types.StepLiquidity)
		env.treasuryBalances()

		d, err := env.svc.distribute(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, types.DistributionFailed, d.Status)

		statuses := stepStatuses(d)
		assert.Equal(t, types.StepFailed, statuses[types.StepLiquidity])
		assert.Equal(t, types.StepCompleted, statuses[types.StepStaking])
		assert.Equal(t, types.StepCompleted, statuses[types.StepMarkCollected])

		totals, err := env.store.GetDistributionTotals(ctx)
		require.NoError(t, err)
		assert.True(t, totals.TotalRevenue.IsZero())
	})

	t.Run("failed staking transfer skips the fee snapshot", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedPosition(t, testutil.RandomUserID(), env.tokens(100_000), 0, false)
		env.seedFees(t, 10_000)
		env.expectAllSteps(t, types.StepStaking)
		env.treasuryBalances()

		d, err := env.svc.distribute(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, types.DistributionFailed, d.Status)
		assert.Equal(t, types.StepSkipped, stepStatuses(d)[types.StepFeeSnapshot])

		_, err = env.store.GetFeeSnapshotByDistribution(ctx, d.ID)
		assert.Error(t, err)
	})

	t.Run("fee share is retained without stakers", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedFees(t, 10_000)
		env.expectAllSteps(t)
		env.treasuryBalances()

		d, err := env.svc.distribute(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, types.DistributionCompleted, d.Status)
		assert.Equal(t, types.StepSkipped, stepStatuses(d)[types.StepFeeSnapshot])
		assert.Contains(t, d.Step(types.StepFeeSnapshot).Error, "no stake weight")
	})

	t.Run("nothing to distribute", func(t *testing.T) {
		env := newTestEnv(t)
		d, err := env.svc.distribute(ctx, true)
		require.NoError(t, err)
		assert.Nil(t, d)
	})

	t.Run("treasury not configured", func(t *testing.T) {
		env := newTestEnv(t, withoutTreasury())
		env.seedFees(t, 10_000)

		d, err := env.svc.distribute(ctx, true)
		require.NoError(t, err)
		assert.Nil(t, d)

		_, serr := env.svc.TriggerDistribution(ctx)
		require.NotNil(t, serr)
		assert.Equal(t, types.ConfigurationError, serr.ErrorCode)
	})

	t.Run("resumes an unconfirmed transfer without sending it again", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedPosition(t, testutil.RandomUserID(), env.tokens(100_000), 0, false)
		env.seedFees(t, 10_000)
		env.treasuryBalances()

		env.expectStep(t, types.StepBurn, env.tokens(500), "burn-sig", nil)
		env.expectStep(t, types.StepLiquidity, env.tokens(3_800), "liq-sig", solclient.ErrUnconfirmed)

		d, err := env.svc.distribute(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, types.DistributionInProgress, d.Status)

		stored, err := env.store.GetInProgressDistribution(ctx)
		require.NoError(t, err)
		assert.Equal(t, "liq-sig", stored.Step(types.StepLiquidity).TxReference)

		env.treasury.On("Confirm", mock.Anything, "liq-sig").Return(solclient.ConfirmationConfirmed, nil).Once()
		env.expectStep(t, types.StepStaking, env.tokens(1_900), "staking-sig", nil)
		env.expectStep(t, types.StepGrants, env.tokens(1_900), "grants-sig", nil)

		resumed, err := env.svc.distribute(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, d.ID, resumed.ID)
		assert.Equal(t, types.DistributionCompleted, resumed.Status)
		assert.Equal(t, types.StepCompleted, stepStatuses(resumed)[types.StepLiquidity])
		env.treasury.AssertNumberOfCalls(t, "Burn", 1)
	})

	t.Run("dropped transfer fails the step", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedPosition(t, testutil.RandomUserID(), env.tokens(100_000), 0, false)
		env.seedFees(t, 10_000)
		env.treasuryBalances()

		env.expectStep(t, types.StepBurn, env.tokens(500), "burn-sig", nil)
		env.expectStep(t, types.StepLiquidity, env.tokens(3_800), "liq-sig", solclient.ErrUnconfirmed)
		_, err := env.svc.distribute(ctx, true)
		require.NoError(t, err)

		env.treasury.On("Confirm", mock.Anything, "liq-sig").Return(solclient.ConfirmationNotFound, nil).Once()
		env.expectStep(t, types.StepStaking, env.tokens(1_900), "staking-sig", nil)
		env.expectStep(t, types.StepGrants, env.tokens(1_900), "grants-sig", nil)

		d, err := env.svc.distribute(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, types.DistributionFailed, d.Status)
		assert.Equal(t, "transaction not_found", d.Step(types.StepLiquidity).Error)
	})
}

func TestTriggerDistribution(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)
	env.seedFees(t, 10_000)

	lock, err := env.store.AcquireJobLock(ctx, distributionJob, "other", time.Hour, env.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, lock)

	_, serr := env.svc.TriggerDistribution(ctx)
	require.NotNil(t, serr)
	assert.Equal(t, types.ConflictError, serr.ErrorCode)

	require.NoError(t, env.store.ReleaseJobLock(ctx, distributionJob, lock.Token))
	env.expectAllSteps(t)
	env.treasuryBalances()

	d, serr := env.svc.TriggerDistribution(ctx)
	require.Nil(t, serr)
	require.NotNil(t, d)
	assert.Equal(t, types.DistributionCompleted, d.Status)
}

func TestTreasuryStats(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)

	stats, serr := env.svc.GetTreasuryStats(ctx)
	require.Nil(t, serr)
	assert.Nil(t, stats.LastDistribution)
	assert.Equal(t, env.clock.Now(), stats.NextDistributionAt)

	env.seedPosition(t, testutil.RandomUserID(), env.tokens(100_000), 0, false)
	env.seedFees(t, 10_000)
	env.expectAllSteps(t)
	env.treasuryBalances()
	d, err := env.svc.distribute(ctx, true)
	require.NoError(t, err)

	env.seedFees(t, 42)
	stats, serr = env.svc.GetTreasuryStats(ctx)
	require.Nil(t, serr)
	assert.Equal(t, d.ID, stats.LastDistribution.ID)
	assert.Equal(t, d.CreatedAt.Add(7*24*time.Hour), stats.NextDistributionAt)
	assert.True(t, stats.PendingFees.Equal(env.tokens(42)))
	assert.Equal(t, uint64(1), stats.PendingFeeCount)
	assert.True(t, stats.Totals.TotalBurned.Equal(env.tokens(500)))
	require.NotNil(t, stats.Balance)

	history, serr := env.svc.GetDistributionHistory(ctx, 0)
	require.Nil(t, serr)
	require.Len(t, history, 1)
	assert.Equal(t, d.ID, history[0].ID)

	_, serr = env.svc.GetDistributionHistory(ctx, 101)
	require.NotNil(t, serr)
	assert.Equal(t, types.ValidationError, serr.ErrorCode)
}

func TestRunDistributionCadence(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)
	env.seedPosition(t, testutil.RandomUserID(), env.tokens(100_000), 0, false)
	env.seedFees(t, 10_000)
	env.expectAllSteps(t)
	env.treasuryBalances()

	require.NoError(t, env.svc.RunDistribution(ctx))
	first, err := env.store.GetLatestDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DistributionCompleted, first.Status)

	// an instance started a day later ticks within the same week
	env.clock.Advance(24 * time.Hour)
	env.seedFees(t, 10_000)
	require.NoError(t, env.svc.RunDistribution(ctx))

	history, serr := env.svc.GetDistributionHistory(ctx, 0)
	require.Nil(t, serr)
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].ID)

	env.clock.Advance(6 * 24 * time.Hour)
	env.expectAllSteps(t)
	require.NoError(t, env.svc.RunDistribution(ctx))

	history, serr = env.svc.GetDistributionHistory(ctx, 0)
	require.Nil(t, serr)
	require.Len(t, history, 2)
	assert.Equal(t, types.DistributionCompleted, history[0].Status)
	assert.NotEqual(t, first.ID, history[0].ID)
}
