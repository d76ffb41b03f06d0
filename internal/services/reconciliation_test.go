package services

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mvgalabs/staking-rewards-service/internal/queue"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
	"github.com/mvgalabs/staking-rewards-service/tests/mocks"
	"github.com/mvgalabs/staking-rewards-service/testutil"
)

func TestReconcileVault(t *testing.T) {
	tests := []struct {
		name    string
		ledger  int64
		onchain int64
		percent string
		status  types.ReconciliationStatus
	}{
		{"surplus above critical", 95_000, 100_000, "5.263157894736842105", types.ReconciliationCritical},
		{"exactly at critical", 100_000, 105_000, "5.000000000000000000", types.ReconciliationWarning},
		{"exactly at warning", 100_000, 101_000, "1.000000000000000000", types.ReconciliationOK},
		{"shortfall", 100_000, 94_000, "-6.000000000000000000", types.ReconciliationCritical},
		{"empty ledger", 0, 500, "0.000000000000000000", types.ReconciliationOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := t.Context()
			publisher := mocks.NewEventPublisher(t)
			env := newTestEnv(t, withPublisher(publisher))
			if tt.ledger > 0 {
				env.seedPosition(t, testutil.RandomUserID(), env.tokens(tt.ledger), 0, false)
			}
			env.vaultBalance(env.tokens(tt.onchain))

			if tt.status != types.ReconciliationOK {
				publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e *queue.StakingEvent) bool {
					return e.Type == types.EventVaultDiscrepancy && e.Details["status"] == tt.status.String()
				})).Return(nil).Once()
			}

			rec, err := env.svc.reconcileVault(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.status, rec.Status)
			assert.Equal(t, tt.percent, rec.DiscrepancyPercent)
			assert.True(t, rec.Discrepancy.Equal(env.tokens(tt.onchain-tt.ledger)))
			assert.Equal(t, vaultAddress, rec.VaultAddress)

			latest, err := env.store.GetLatestVaultReconciliation(ctx)
			require.NoError(t, err)
			assert.Equal(t, rec.ID, latest.ID)
		})
	}
}

func TestDiscrepancyPercent(t *testing.T) {
	assert.True(t, discrepancyPercent(sdkmath.NewInt(-5), sdkmath.ZeroInt()).IsZero())
	assert.True(t, discrepancyPercent(sdkmath.NewInt(50), sdkmath.NewInt(200)).Equal(sdkmath.LegacyNewDec(25)))
}

func TestRunReconciliationSkipsWhenLocked(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)

	lock, err := env.store.AcquireJobLock(ctx, reconciliationJob, "other", time.Minute, env.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, lock)

	require.NoError(t, env.svc.RunReconciliation(ctx))
	env.vault.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything)

	// an expired lease is taken over
	env.clock.Advance(2 * time.Minute)
	env.vaultBalance(sdkmath.ZeroInt())
	require.NoError(t, env.svc.RunReconciliation(ctx))

	rec, err := env.store.GetLatestVaultReconciliation(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ReconciliationOK, rec.Status)
}

func TestRunReconciliationCadence(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)
	env.vaultBalance(sdkmath.ZeroInt())

	require.NoError(t, env.svc.RunReconciliation(ctx))
	first, err := env.store.GetLatestVaultReconciliation(ctx)
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	require.NoError(t, env.svc.RunReconciliation(ctx))
	latest, err := env.store.GetLatestVaultReconciliation(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)

	// a manual run ignores the cadence
	require.NoError(t, env.svc.TriggerReconciliation(ctx))
	latest, err = env.store.GetLatestVaultReconciliation(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, latest.ID)

	env.clock.Advance(24 * time.Hour)
	require.NoError(t, env.svc.RunReconciliation(ctx))
	next, err := env.store.GetLatestVaultReconciliation(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now(), next.CheckedAt)
}
