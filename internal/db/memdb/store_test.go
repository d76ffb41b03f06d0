package memdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/memdb"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newPosition(id, user string, amount int64, created time.Time) *model.StakePosition {
	return model.NewStakePosition(id, user, "wallet-"+user, sdkmath.NewInt(amount), 0, "tx-"+id, false, created)
}

func TestStakePositions(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()

	require.NoError(t, store.SaveNewStakePosition(ctx, newPosition("p2", "alice", 200, t0.Add(time.Hour))))
	require.NoError(t, store.SaveNewStakePosition(ctx, newPosition("p1", "alice", 100, t0)))
	require.NoError(t, store.SaveNewStakePosition(ctx, newPosition("p3", "bob", 300, t0)))

	t.Run("reused stake tx is rejected", func(t *testing.T) {
		dup := newPosition("p4", "carol", 1, t0)
		dup.StakeTx = "tx-p1"
		err := store.SaveNewStakePosition(ctx, dup)
		assert.True(t, db.IsDuplicateKeyError(err))

		used, err := store.IsStakeTxUsed(ctx, "tx-p1")
		require.NoError(t, err)
		assert.True(t, used)
	})

	t.Run("active positions are ordered by creation", func(t *testing.T) {
		positions, err := store.GetActivePositionsByUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, positions, 2)
		assert.Equal(t, "p1", positions[0].ID)
		assert.Equal(t, "p2", positions[1].ID)
	})

	t.Run("reads return copies", func(t *testing.T) {
		p, err := store.GetStakePositionByID(ctx, "p1")
		require.NoError(t, err)
		p.Amount = sdkmath.NewInt(999)

		again, err := store.GetStakePositionByID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(100), again.Amount)
	})

	t.Run("stake stats", func(t *testing.T) {
		stats, err := store.GetActiveStakeStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(600), stats.TotalStaked)
		assert.Equal(t, uint64(2), stats.StakerCount)
		assert.Equal(t, uint64(3), stats.ActivePositions)

		grouped, err := store.GetActivePositionsGroupedByUser(ctx)
		require.NoError(t, err)
		require.Len(t, grouped, 2)
		assert.Equal(t, "alice", grouped[0].UserID)
		assert.Len(t, grouped[0].Positions, 2)
	})

	t.Run("auto compound paging", func(t *testing.T) {
		require.NoError(t, store.SetAutoCompound(ctx, "alice", "p1", true))
		require.NoError(t, store.SetAutoCompound(ctx, "alice", "p2", true))
		require.NoError(t, store.SetAutoCompound(ctx, "bob", "p3", true))

		err := store.SetAutoCompound(ctx, "bob", "p1", true)
		assert.True(t, db.IsNotFoundError(err))

		page, err := store.FindAutoCompoundPositions(ctx, "", 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "p2", page[1].ID)

		page, err = store.FindAutoCompoundPositions(ctx, "p2", 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "p3", page[0].ID)
	})
}

func TestWithPositionLock(t *testing.T) {
	ctx := context.Background()

	t.Run("commit applies staged writes", func(t *testing.T) {
		store := memdb.New()
		require.NoError(t, store.SaveNewStakePosition(ctx, newPosition("p1", "alice", 100, t0)))
		require.NoError(t, store.SaveNewStakePosition(ctx, newPosition("p2", "alice", 50, t0.Add(time.Minute))))

		claimedAt := t0.Add(24 * time.Hour)
		err := store.WithPositionLock(ctx, "alice", func(ctx context.Context, tx db.LockedTx) error {
			require.Len(t, tx.Positions(), 2)
			require.NoError(t, tx.SaveRewardClaim(ctx, &model.RewardClaim{
				ID:             "c1",
				UserID:         "alice",
				Amount:         sdkmath.NewInt(5),
				FeeShareAmount: sdkmath.ZeroInt(),
				TxReference:    "ref-1",
				Kind:           types.ClaimKindManual,
				ClaimedAt:      claimedAt,
			}))
			require.NoError(t, tx.AdvanceLastClaimed(ctx, claimedAt))
			require.NoError(t, tx.IncrementPrincipal(ctx, "p1", sdkmath.NewInt(10)))
			require.NoError(t, tx.MarkUnstaked(ctx, "p2", "unstake-ref", claimedAt))

			latest, err := tx.LatestRewardClaim(ctx)
			require.NoError(t, err)
			assert.Equal(t, "c1", latest.ID)
			return nil
		})
		require.NoError(t, err)

		p1, err := store.GetStakePositionByID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(110), p1.Amount)
		assert.Equal(t, sdkmath.NewInt(10), p1.CompoundedTotal)
		require.NotNil(t, p1.LastClaimedAt)
		assert.True(t, claimedAt.Equal(*p1.LastClaimedAt))

		p2, err := store.GetStakePositionByID(ctx, "p2")
		require.NoError(t, err)
		assert.Equal(t, types.PositionUnstaked, p2.Status)
		assert.Equal(t, "unstake-ref", p2.UnstakeTx)

		claim, err := store.GetLatestRewardClaim(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "ref-1", claim.TxReference)
	})

	t.Run("error discards staged writes", func(t *testing.T) {
		store := memdb.New()
		require.NoError(t, store.SaveNewStakePosition(ctx, newPosition("p1", "alice", 100, t0)))

		boom := errors.New("boom")
		err := store.WithPositionLock(ctx, "alice", func(ctx context.Context, tx db.LockedTx) error {
			require.NoError(t, tx.ReducePrincipal(ctx, "p1", sdkmath.NewInt(40)))
			return boom
		})
		require.ErrorIs(t, err, boom)

		p1, err := store.GetStakePositionByID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(100), p1.Amount)

		_, err = store.GetLatestRewardClaim(ctx, "alice")
		assert.True(t, db.IsNotFoundError(err))
	})

	t.Run("reduce principal cannot empty a position", func(t *testing.T) {
		store := memdb.New()
		require.NoError(t, store.SaveNewStakePosition(ctx, newPosition("p1", "alice", 100, t0)))

		err := store.WithPositionLock(ctx, "alice", func(ctx context.Context, tx db.LockedTx) error {
			return tx.ReducePrincipal(ctx, "p1", sdkmath.NewInt(100))
		})
		require.Error(t, err)
	})

	t.Run("nothing to lock", func(t *testing.T) {
		store := memdb.New()
		err := store.WithPositionLock(ctx, "nobody", func(context.Context, db.LockedTx) error {
			t.Fatal("must not run")
			return nil
		})
		assert.True(t, db.IsNothingLockedError(err))
	})

	t.Run("duplicate claim reference", func(t *testing.T) {
		store := memdb.New()
		require.NoError(t, store.SaveNewStakePosition(ctx, newPosition("p1", "alice", 100, t0)))
		claim := &model.RewardClaim{ID: "c1", UserID: "alice", TxReference: "ref", ClaimedAt: t0}

		require.NoError(t, store.WithPositionLock(ctx, "alice", func(ctx context.Context, tx db.LockedTx) error {
			return tx.SaveRewardClaim(ctx, claim)
		}))
		err := store.WithPositionLock(ctx, "alice", func(ctx context.Context, tx db.LockedTx) error {
			return tx.SaveRewardClaim(ctx, claim)
		})
		assert.True(t, db.IsDuplicateKeyError(err))
	})

	t.Run("second holder times out", func(t *testing.T) {
		store := memdb.New(memdb.WithLockTimeouts(50*time.Millisecond, time.Second))
		require.NoError(t, store.SaveNewStakePosition(ctx, newPosition("p1", "alice", 100, t0)))

		entered := make(chan struct{})
		release := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithPositionLock(ctx, "alice", func(context.Context, db.LockedTx) error {
				close(entered)
				<-release
				return nil
			})
		}()

		<-entered
		err := store.WithPositionLock(ctx, "alice", func(context.Context, db.LockedTx) error {
			return nil
		})
		assert.True(t, db.IsLockConflictError(err))

		close(release)
		wg.Wait()

		require.NoError(t, store.WithPositionLock(ctx, "alice", func(context.Context, db.LockedTx) error {
			return nil
		}))
	})
}

func TestFeesAndDistributions(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()

	for i, amount := range []int64{100, 250} {
		require.NoError(t, store.SaveFeeCollection(ctx, &model.FeeCollection{
			ID:        []string{"f1", "f2"}[i],
			Source:    types.FeeSourceSwap,
			Amount:    sdkmath.NewInt(amount),
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	stats, err := store.GetPendingFeeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(350), stats.Total)
	assert.Equal(t, uint64(2), stats.Count)

	updated, err := store.MarkFeesCollected(ctx, []string{"f1", "missing"}, "d1", t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	updated, err = store.MarkFeesCollected(ctx, []string{"f1"}, "d2", t0)
	require.NoError(t, err)
	assert.Zero(t, updated)

	fees, err := store.FindUncollectedFees(ctx)
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, "f2", fees[0].ID)

	d := &model.TreasuryDistribution{
		ID:                "d1",
		TotalAmount:       sdkmath.NewInt(100),
		BurnAmount:        sdkmath.NewInt(5),
		LiquidityAmount:   sdkmath.NewInt(38),
		VaultRefillAmount: sdkmath.NewInt(19),
		FeeShareAmount:    sdkmath.NewInt(19),
		GrantsAmount:      sdkmath.NewInt(19),
		Status:            types.DistributionInProgress,
		Steps: []model.DistributionStep{
			{Name: types.StepBurn, Status: types.StepPending, Amount: sdkmath.NewInt(5)},
		},
		CreatedAt: t0,
	}
	require.NoError(t, store.SaveNewDistribution(ctx, d))

	step := d.Steps[0]
	step.Status = types.StepCompleted
	require.NoError(t, store.UpdateDistributionStep(ctx, "d1", step))

	inProgress, err := store.GetInProgressDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StepCompleted, inProgress.Step(types.StepBurn).Status)
	// caller's copy is untouched
	assert.Equal(t, types.StepPending, d.Steps[0].Status)

	require.NoError(t, store.FinalizeDistribution(ctx, "d1", types.DistributionCompleted, t0))
	err = store.UpdateDistributionStep(ctx, "d1", step)
	assert.True(t, db.IsNotFoundError(err))

	totals, err := store.GetDistributionTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), totals.TotalRevenue)
	assert.Equal(t, sdkmath.NewInt(38), totals.TotalLiquidity)
	assert.Equal(t, sdkmath.NewInt(19), totals.TotalGrants)
	assert.Equal(t, uint64(1), totals.Count)

	// a completed cycle with unset amounts counts as zero
	require.NoError(t, store.SaveNewDistribution(ctx, &model.TreasuryDistribution{
		ID:          "d-partial",
		TotalAmount: sdkmath.NewInt(10),
		Status:      types.DistributionInProgress,
		CreatedAt:   t0.Add(time.Minute),
	}))
	require.NoError(t, store.FinalizeDistribution(ctx, "d-partial", types.DistributionCompleted, t0))
	totals, err = store.GetDistributionTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(110), totals.TotalRevenue)
	assert.Equal(t, sdkmath.NewInt(38), totals.TotalLiquidity)
	assert.Equal(t, uint64(2), totals.Count)

	require.NoError(t, store.SaveFeeSnapshot(ctx, &model.FeeSnapshot{ID: "s1", DistributionID: "d1", PeriodEnd: t0}))
	err = store.SaveFeeSnapshot(ctx, &model.FeeSnapshot{ID: "s2", DistributionID: "d1", PeriodEnd: t0})
	assert.True(t, db.IsDuplicateKeyError(err))

	snapshots, err := store.FindFeeSnapshots(ctx, &t0, t0.Add(-time.Hour), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, snapshots)
	snapshots, err = store.FindFeeSnapshots(ctx, nil, t0.Add(-time.Hour), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, snapshots, 1)
}

func TestJobLock(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()

	lock, err := store.AcquireJobLock(ctx, "job", "a", time.Minute, t0)
	require.NoError(t, err)
	require.NotNil(t, lock)

	held, err := store.AcquireJobLock(ctx, "job", "b", time.Minute, t0.Add(30*time.Second))
	require.NoError(t, err)
	assert.Nil(t, held)

	// a stale token does not release the lease
	require.NoError(t, store.ReleaseJobLock(ctx, "job", "stale"))
	held, err = store.AcquireJobLock(ctx, "job", "b", time.Minute, t0.Add(30*time.Second))
	require.NoError(t, err)
	assert.Nil(t, held)

	expired, err := store.AcquireJobLock(ctx, "job", "b", time.Minute, t0.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, expired)
	assert.Equal(t, "b", expired.Holder)

	require.NoError(t, store.ReleaseJobLock(ctx, "job", expired.Token))
	again, err := store.AcquireJobLock(ctx, "job", "c", time.Minute, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestPendingSettlements(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()
	require.NoError(t, store.SaveNewStakePosition(ctx, newPosition("p1", "alice", 100, t0)))

	pending := &model.PendingSettlement{
		Reference:      "sig-1",
		UserID:         "alice",
		Type:           types.TxTypeStakingClaim,
		Amount:         sdkmath.NewInt(7),
		BaseAmount:     sdkmath.NewInt(7),
		FeeShareAmount: sdkmath.ZeroInt(),
		CreatedAt:      t0,
	}

	t.Run("aborted transaction discards the marker", func(t *testing.T) {
		err := store.WithPositionLock(ctx, "alice", func(ctx context.Context, tx db.LockedTx) error {
			require.NoError(t, tx.SavePendingSettlement(ctx, pending))
			staged, err := tx.PendingSettlements(ctx)
			require.NoError(t, err)
			require.Len(t, staged, 1)
			return errors.New("abort")
		})
		require.Error(t, err)

		has, err := store.HasPendingSettlement(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("committed marker blocks until deleted", func(t *testing.T) {
		err := store.WithPositionLock(ctx, "alice", func(ctx context.Context, tx db.LockedTx) error {
			return tx.SavePendingSettlement(ctx, pending)
		})
		require.NoError(t, err)

		has, err := store.HasPendingSettlement(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, has)
		users, err := store.FindPendingSettlementUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, users)

		// the fallback save tolerates a marker that already exists
		require.NoError(t, store.SavePendingSettlement(ctx, pending))

		err = store.WithPositionLock(ctx, "alice", func(ctx context.Context, tx db.LockedTx) error {
			err := tx.SavePendingSettlement(ctx, pending)
			assert.True(t, db.IsDuplicateKeyError(err))

			require.NoError(t, tx.DeletePendingSettlement(ctx, "sig-1"))
			open, err := tx.PendingSettlements(ctx)
			require.NoError(t, err)
			assert.Empty(t, open)

			err = tx.DeletePendingSettlement(ctx, "sig-1")
			assert.True(t, db.IsNotFoundError(err))
			return nil
		})
		require.NoError(t, err)

		has, err = store.HasPendingSettlement(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, has)
	})
}

func TestJobRun(t *testing.T) {
	ctx := context.Background()
	store := memdb.New()

	_, err := store.GetJobRun(ctx, "job")
	assert.True(t, db.IsNotFoundError(err))

	require.NoError(t, store.RecordJobRun(ctx, "job", "a", t0))
	require.NoError(t, store.RecordJobRun(ctx, "job", "b", t0.Add(time.Hour)))

	run, err := store.GetJobRun(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, "b", run.Holder)
	assert.Equal(t, t0.Add(time.Hour), run.LastRunAt)
}
