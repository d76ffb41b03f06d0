package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
	"github.com/mvgalabs/staking-rewards-service/testutil"
)

func TestClaimRewards(t *testing.T) {
	ctx := t.Context()

	t.Run("pays accrued rewards and closes the window", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(100_000), 0, false)
		env.vaultBalance(env.tokens(10_000_000))

		env.clock.Advance(30 * 24 * time.Hour)
		summary, err := env.svc.GetPosition(ctx, user)
		require.Nil(t, err)
		expected := summary.TotalRewards
		require.True(t, expected.GT(env.tokens(10)))

		env.vault.On("Transfer", mock.Anything, p.WalletAddress, amountEq(expected)).Return("claim-sig", nil).Once()

		result, err := env.svc.ClaimRewards(ctx, user)
		require.Nil(t, err)
		assert.True(t, result.Amount.Equal(expected))
		assert.Equal(t, "claim-sig", result.TxReference)

		claims := env.store.RewardClaims(user)
		require.Len(t, claims, 1)
		assert.Equal(t, types.ClaimKindManual, claims[0].Kind)
		assert.Equal(t, "claim-sig", claims[0].TxReference)
		assert.Equal(t, []string{p.ID}, claims[0].PositionIDs)

		stored := env.position(t, p.ID)
		require.NotNil(t, stored.LastClaimedAt)
		assert.Equal(t, env.clock.Now(), *stored.LastClaimedAt)

		after, err := env.svc.GetPosition(ctx, user)
		require.Nil(t, err)
		assert.True(t, after.TotalRewards.IsZero())

		env.svc.WaitSideEffects()
		txLog, ok := env.store.TransactionLog("claim-sig")
		require.True(t, ok)
		assert.Equal(t, types.TxTypeStakingClaim, txLog.Type)
		assert.Equal(t, types.TxLogConfirmed, txLog.Status)
	})

	t.Run("second claim within the cooldown is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(100_000), 0, false)
		env.vaultBalance(env.tokens(10_000_000))
		env.clock.Advance(30 * 24 * time.Hour)
		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).Return("claim-1", nil).Once()

		_, err := env.svc.ClaimRewards(ctx, user)
		require.Nil(t, err)

		_, err = env.svc.ClaimRewards(ctx, user)
		require.NotNil(t, err)
		assert.Equal(t, types.ValidationError, err.ErrorCode)
		assert.Contains(t, err.Error(), "claimed recently")

		env.clock.Advance(23 * time.Hour)
		_, err = env.svc.ClaimRewards(ctx, user)
		require.NotNil(t, err)
		assert.Contains(t, err.Error(), "claimed recently")

		env.clock.Advance(time.Hour)
		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).Return("claim-2", nil).Once()
		_, err = env.svc.ClaimRewards(ctx, user)
		require.Nil(t, err)
		assert.Len(t, env.store.RewardClaims(user), 2)
	})

	t.Run("concurrent claims pay once", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(100_000), 0, false)
		env.vaultBalance(env.tokens(10_000_000))
		env.clock.Advance(30 * 24 * time.Hour)
		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).Return("claim-sig", nil).Once()

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			failures []*types.Error
		)
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := env.svc.ClaimRewards(ctx, user)
				if err != nil {
					mu.Lock()
					failures = append(failures, err)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Len(t, failures, 1)
		assert.Equal(t, types.ValidationError, failures[0].ErrorCode)
		assert.Len(t, env.store.RewardClaims(user), 1)
	})

	t.Run("below the minimum claim", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		env.seedPosition(t, user, env.tokens(100), 0, false)
		env.clock.Advance(24 * time.Hour)

		_, err := env.svc.ClaimRewards(ctx, user)
		require.NotNil(t, err)
		assert.Equal(t, types.ValidationError, err.ErrorCode)
		assert.Contains(t, err.Error(), "below the minimum claim")
	})

	t.Run("depleted reward pool", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(100_000), 0, false)
		env.vaultBalance(env.tokens(5))
		env.clock.Advance(30 * 24 * time.Hour)

		_, err := env.svc.ClaimRewards(ctx, user)
		require.NotNil(t, err)
		assert.Equal(t, types.SettlementError, err.ErrorCode)
		assert.Contains(t, err.Error(), "reward pool temporarily depleted")
		assert.Empty(t, env.store.RewardClaims(user))
		assert.Nil(t, env.position(t, p.ID).LastClaimedAt)
	})

	t.Run("failed transfer records nothing", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(100_000), 0, false)
		env.vaultBalance(env.tokens(10_000_000))
		env.clock.Advance(30 * 24 * time.Hour)
		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).Return("", errors.New("rpc down")).Once()

		_, err := env.svc.ClaimRewards(ctx, user)
		require.NotNil(t, err)
		assert.Equal(t, types.SettlementError, err.ErrorCode)
		assert.Empty(t, env.store.RewardClaims(user))
		assert.Nil(t, env.position(t, p.ID).LastClaimedAt)
	})

	t.Run("no vault signer", func(t *testing.T) {
		env := newTestEnv(t, withoutVaultSigner())
		user := testutil.RandomUserID()
		env.seedPosition(t, user, env.tokens(100_000), 0, false)
		env.clock.Advance(30 * 24 * time.Hour)

		_, err := env.svc.ClaimRewards(ctx, user)
		require.NotNil(t, err)
		assert.Equal(t, types.ConfigurationError, err.ErrorCode)
	})

	t.Run("no positions", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.ClaimRewards(ctx, testutil.RandomUserID())
		require.NotNil(t, err)
		assert.Equal(t, types.ConflictError, err.ErrorCode)
	})
}

func TestClaimReferralBonus(t *testing.T) {
	ctx := t.Context()

	setup := func(t *testing.T, opts ...envOption) (*testEnv, string, *model.Referral, *model.StakePosition) {
		env := newTestEnv(t, opts...)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(100_000), 0, false)
		env.vaultBalance(env.tokens(10_000_000))
		env.clock.Advance(30 * 24 * time.Hour)

		referral := &model.Referral{
			RefereeUserID:  user,
			ReferrerUserID: testutil.RandomUserID(),
			ReferrerWallet: testutil.RandomWallet(),
			CreatedAt:      testStart,
		}
		require.NoError(t, env.store.SaveReferral(ctx, referral))
		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).Return("claim-sig", nil).Once()
		return env, user, referral, p
	}

	t.Run("pays five percent to the referrer", func(t *testing.T) {
		env, user, referral, _ := setup(t)

		var bonus sdkmath.Int
		env.treasury.On("Transfer", mock.Anything, referral.ReferrerWallet, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				bonus = args.Get(2).(sdkmath.Int)
				runHook(t, "bonus-sig", 3)(args)
			}).
			Return("bonus-sig", nil).Once()

		result, err := env.svc.ClaimRewards(ctx, user)
		require.Nil(t, err)
		env.svc.WaitSideEffects()

		expected := result.Amount.MulRaw(5).QuoRaw(100)
		assert.True(t, bonus.Equal(expected))

		bonuses := env.store.ReferralBonuses()
		require.Len(t, bonuses, 1)
		assert.Equal(t, result.TxReference, bonuses[0].ClaimReference)
		assert.Equal(t, "bonus-sig", bonuses[0].TxReference)
		assert.Equal(t, referral.ReferrerUserID, bonuses[0].ReferrerUserID)

		txLog, ok := env.store.TransactionLog("bonus-sig")
		require.True(t, ok)
		assert.Equal(t, types.TxTypeReferralBonus, txLog.Type)
	})

	t.Run("bonus failure does not affect the claim", func(t *testing.T) {
		env, user, referral, p := setup(t)
		env.treasury.On("Transfer", mock.Anything, referral.ReferrerWallet, mock.Anything, mock.Anything).
			Return("", errors.New("treasury empty")).Once()

		_, err := env.svc.ClaimRewards(ctx, user)
		require.Nil(t, err)
		env.svc.WaitSideEffects()

		assert.Empty(t, env.store.ReferralBonuses())
		assert.Len(t, env.store.RewardClaims(user), 1)
		assert.NotNil(t, env.position(t, p.ID).LastClaimedAt)
	})

	t.Run("skipped without a treasury signer", func(t *testing.T) {
		env, user, _, _ := setup(t, withoutTreasury())

		_, err := env.svc.ClaimRewards(ctx, user)
		require.Nil(t, err)
		env.svc.WaitSideEffects()
		assert.Empty(t, env.store.ReferralBonuses())
	})
}
