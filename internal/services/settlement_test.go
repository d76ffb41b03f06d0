package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mvgalabs/staking-rewards-service/internal/clients/solclient"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
	"github.com/mvgalabs/staking-rewards-service/testutil"
)

func (e *testEnv) expectConfirm(ref string, status solclient.ConfirmationStatus) {
	e.vault.On("Confirm", mock.Anything, ref).Return(status, nil).Once()
}

func (e *testEnv) hasPending(t *testing.T, userID string) bool {
	t.Helper()

	has, err := e.store.HasPendingSettlement(t.Context(), userID)
	require.NoError(t, err)
	return has
}

func TestClaimUnconfirmedTransfer(t *testing.T) {
	ctx := t.Context()

	t.Run("retry is blocked until the transfer confirms", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(100_000), 0, false)
		env.vaultBalance(env.tokens(10_000_000))
		env.clock.Advance(30 * 24 * time.Hour)
		sentAt := env.clock.Now()

		summary, serr := env.svc.GetPosition(ctx, user)
		require.Nil(t, serr)

		env.vault.On("Transfer", mock.Anything, p.WalletAddress, amountEq(summary.TotalRewards)).
			Return("sig-1", solclient.ErrUnconfirmed).Once()
		env.expectConfirm("sig-1", solclient.ConfirmationPending)

		_, serr = env.svc.ClaimRewards(ctx, user)
		require.NotNil(t, serr)
		assert.Equal(t, types.ConflictError, serr.ErrorCode)
		assert.Contains(t, serr.Error(), "awaiting confirmation")
		assert.Empty(t, env.store.RewardClaims(user))
		assert.Nil(t, env.position(t, p.ID).LastClaimedAt)
		assert.True(t, env.hasPending(t, user))

		env.svc.WaitSideEffects()
		txLog, ok := env.store.TransactionLog("sig-1")
		require.True(t, ok)
		assert.Equal(t, types.TxLogPending, txLog.Status)

		// a retry a minute later must not send a second transfer
		env.clock.Advance(time.Minute)
		env.expectConfirm("sig-1", solclient.ConfirmationPending)
		_, serr = env.svc.ClaimRewards(ctx, user)
		require.NotNil(t, serr)
		assert.Equal(t, types.ConflictError, serr.ErrorCode)
		env.vault.AssertNumberOfCalls(t, "Transfer", 1)

		// once confirmed the claim is recorded as of the send and the
		// cooldown applies to the retry
		env.clock.Advance(time.Minute)
		env.expectConfirm("sig-1", solclient.ConfirmationConfirmed)
		_, serr = env.svc.ClaimRewards(ctx, user)
		require.NotNil(t, serr)
		assert.Equal(t, types.ValidationError, serr.ErrorCode)
		assert.Contains(t, serr.Error(), "claimed recently")
		env.vault.AssertNumberOfCalls(t, "Transfer", 1)

		claims := env.store.RewardClaims(user)
		require.Len(t, claims, 1)
		assert.Equal(t, "sig-1", claims[0].TxReference)
		assert.Equal(t, sentAt, claims[0].ClaimedAt)
		assert.True(t, claims[0].Amount.Add(claims[0].FeeShareAmount).Equal(summary.TotalRewards))
		require.NotNil(t, env.position(t, p.ID).LastClaimedAt)
		assert.Equal(t, sentAt, *env.position(t, p.ID).LastClaimedAt)
		assert.False(t, env.hasPending(t, user))

		env.svc.WaitSideEffects()
		txLog, ok = env.store.TransactionLog("sig-1")
		require.True(t, ok)
		assert.Equal(t, types.TxLogConfirmed, txLog.Status)
	})

	t.Run("a slow transfer confirmed right away is recorded", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(100_000), 0, false)
		env.vaultBalance(env.tokens(10_000_000))
		env.clock.Advance(30 * 24 * time.Hour)

		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).
			Return("sig-2", solclient.ErrUnconfirmed).Once()
		env.expectConfirm("sig-2", solclient.ConfirmationConfirmed)

		result, serr := env.svc.ClaimRewards(ctx, user)
		require.Nil(t, serr)
		assert.Equal(t, "sig-2", result.TxReference)
		assert.Len(t, env.store.RewardClaims(user), 1)
		assert.False(t, env.hasPending(t, user))
	})

	t.Run("a transfer that never landed frees the user", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(100_000), 0, false)
		env.vaultBalance(env.tokens(10_000_000))
		env.clock.Advance(30 * 24 * time.Hour)

		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).
			Return("sig-3", solclient.ErrUnconfirmed).Once()
		env.expectConfirm("sig-3", solclient.ConfirmationPending)
		_, serr := env.svc.ClaimRewards(ctx, user)
		require.NotNil(t, serr)
		env.svc.WaitSideEffects()

		// unknown to the cluster past the signature expiry
		env.clock.Advance(solclient.SignatureExpiry + time.Minute)
		env.expectConfirm("sig-3", solclient.ConfirmationNotFound)
		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).Return("sig-4", nil).Once()

		result, serr := env.svc.ClaimRewards(ctx, user)
		require.Nil(t, serr)
		assert.Equal(t, "sig-4", result.TxReference)

		claims := env.store.RewardClaims(user)
		require.Len(t, claims, 1)
		assert.Equal(t, "sig-4", claims[0].TxReference)
		assert.False(t, env.hasPending(t, user))

		env.svc.WaitSideEffects()
		dropped, ok := env.store.TransactionLog("sig-3")
		require.True(t, ok)
		assert.Equal(t, types.TxLogFailed, dropped.Status)
	})

	t.Run("pending payouts also block auto-compound", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(100_000), 0, true)
		env.vaultBalance(env.tokens(10_000_000))
		env.clock.Advance(30 * 24 * time.Hour)

		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).
			Return("sig-5", solclient.ErrUnconfirmed).Once()
		env.expectConfirm("sig-5", solclient.ConfirmationPending)
		_, serr := env.svc.ClaimRewards(ctx, user)
		require.NotNil(t, serr)

		env.expectConfirm("sig-5", solclient.ConfirmationPending)
		result, err := env.svc.autoCompound(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Compounded)
		assert.Equal(t, 1, result.Skipped)
		assert.True(t, env.position(t, p.ID).Amount.Equal(env.tokens(100_000)))
	})

	t.Run("reconciliation settles confirmed payouts", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(100_000), 0, false)
		env.vaultBalance(env.tokens(100_000))
		env.clock.Advance(30 * 24 * time.Hour)

		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).
			Return("sig-6", solclient.ErrUnconfirmed).Once()
		env.expectConfirm("sig-6", solclient.ConfirmationPending)
		_, serr := env.svc.ClaimRewards(ctx, user)
		require.NotNil(t, serr)

		env.expectConfirm("sig-6", solclient.ConfirmationConfirmed)
		_, err := env.svc.reconcileVault(ctx)
		require.NoError(t, err)

		assert.Len(t, env.store.RewardClaims(user), 1)
		assert.False(t, env.hasPending(t, user))
	})
}

func TestUnstakeUnconfirmedTransfer(t *testing.T) {
	ctx := t.Context()

	t.Run("full unstake pays the principal once", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(1000), 0, false)
		env.vaultBalance(env.tokens(1_000_000))
		sentAt := env.clock.Now()

		env.vault.On("Transfer", mock.Anything, p.WalletAddress, amountEq(env.tokens(1000))).
			Return("unstake-1", solclient.ErrUnconfirmed).Once()
		env.expectConfirm("unstake-1", solclient.ConfirmationPending)

		_, serr := env.svc.Unstake(ctx, UnstakeRequest{UserID: user, Amount: env.tokens(1000)})
		require.NotNil(t, serr)
		assert.Equal(t, types.ConflictError, serr.ErrorCode)
		assert.Contains(t, serr.Error(), "awaiting confirmation")
		assert.Equal(t, types.PositionActive, env.position(t, p.ID).Status)

		env.clock.Advance(time.Minute)
		env.expectConfirm("unstake-1", solclient.ConfirmationPending)
		_, serr = env.svc.Unstake(ctx, UnstakeRequest{UserID: user, Amount: env.tokens(1000)})
		require.NotNil(t, serr)
		assert.Equal(t, types.ConflictError, serr.ErrorCode)
		env.vault.AssertNumberOfCalls(t, "Transfer", 1)

		env.clock.Advance(time.Minute)
		env.expectConfirm("unstake-1", solclient.ConfirmationConfirmed)
		_, serr = env.svc.Unstake(ctx, UnstakeRequest{UserID: user, Amount: env.tokens(1000)})
		require.NotNil(t, serr)
		assert.Contains(t, serr.Error(), "no active position")
		env.vault.AssertNumberOfCalls(t, "Transfer", 1)

		stored := env.position(t, p.ID)
		assert.Equal(t, types.PositionUnstaked, stored.Status)
		assert.Equal(t, "unstake-1", stored.UnstakeTx)
		require.NotNil(t, stored.UnstakedAt)
		assert.Equal(t, sentAt, *stored.UnstakedAt)

		env.svc.WaitSideEffects()
		txLog, ok := env.store.TransactionLog("unstake-1")
		require.True(t, ok)
		assert.Equal(t, types.TxLogConfirmed, txLog.Status)
	})

	t.Run("partial unstake applies once confirmed", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(1000), 0, false)
		env.vaultBalance(env.tokens(1_000_000))

		env.vault.On("Transfer", mock.Anything, p.WalletAddress, amountEq(env.tokens(400))).
			Return("unstake-2", solclient.ErrUnconfirmed).Once()
		env.expectConfirm("unstake-2", solclient.ConfirmationPending)
		_, serr := env.svc.Unstake(ctx, UnstakeRequest{UserID: user, Amount: env.tokens(400)})
		require.NotNil(t, serr)
		assert.True(t, env.position(t, p.ID).Amount.Equal(env.tokens(1000)))

		env.expectConfirm("unstake-2", solclient.ConfirmationConfirmed)
		env.vault.On("Transfer", mock.Anything, p.WalletAddress, amountEq(env.tokens(100))).
			Return("unstake-3", nil).Once()
		result, serr := env.svc.Unstake(ctx, UnstakeRequest{UserID: user, Amount: env.tokens(100)})
		require.Nil(t, serr)
		assert.Equal(t, "unstake-3", result.TxReference)
		assert.True(t, env.position(t, p.ID).Amount.Equal(env.tokens(500)))
	})

	t.Run("failed transfer lets the user retry", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(1000), 0, false)
		env.vaultBalance(env.tokens(1_000_000))

		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).
			Return("unstake-4", solclient.ErrUnconfirmed).Once()
		env.expectConfirm("unstake-4", solclient.ConfirmationPending)
		_, serr := env.svc.Unstake(ctx, UnstakeRequest{UserID: user, Amount: env.tokens(1000)})
		require.NotNil(t, serr)
		env.svc.WaitSideEffects()

		env.expectConfirm("unstake-4", solclient.ConfirmationFailed)
		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).
			Return("unstake-5", nil).Once()
		result, serr := env.svc.Unstake(ctx, UnstakeRequest{UserID: user, Amount: env.tokens(1000)})
		require.Nil(t, serr)
		assert.True(t, result.FullyUnstake)
		assert.Equal(t, "unstake-5", env.position(t, p.ID).UnstakeTx)

		env.svc.WaitSideEffects()
		txLog, ok := env.store.TransactionLog("unstake-4")
		require.True(t, ok)
		assert.Equal(t, types.TxLogFailed, txLog.Status)
	})

	t.Run("transfer known failed on chain records nothing", func(t *testing.T) {
		env := newTestEnv(t)
		user := testutil.RandomUserID()
		p := env.seedPosition(t, user, env.tokens(1000), 0, false)
		env.vaultBalance(env.tokens(1_000_000))

		env.vault.On("Transfer", mock.Anything, p.WalletAddress, mock.Anything).
			Return("unstake-6", solclient.ErrTransactionFailed).Once()
		_, serr := env.svc.Unstake(ctx, UnstakeRequest{UserID: user, Amount: env.tokens(1000)})
		require.NotNil(t, serr)
		assert.Equal(t, types.SettlementError, serr.ErrorCode)
		assert.False(t, env.hasPending(t, user))
		env.vault.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything)
	})
}
