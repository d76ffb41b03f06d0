package db

import (
	"context"
	"time"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/observability/metrics"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

type DbWithMetrics struct {
	db DbInterface
}

func NewDbWithMetrics(db DbInterface) *DbWithMetrics {
	return &DbWithMetrics{db: db}
}

func (d *DbWithMetrics) Ping(ctx context.Context) error {
	return d.db.Ping(ctx)
}

func (d *DbWithMetrics) SaveNewStakePosition(ctx context.Context, position *model.StakePosition) error {
	return d.run("SaveNewStakePosition", func() error {
		return d.db.SaveNewStakePosition(ctx, position)
	})
}

func (d *DbWithMetrics) IsStakeTxUsed(ctx context.Context, stakeTx string) (result bool, err error) {
	//nolint:errcheck
	d.run("IsStakeTxUsed", func() error {
		result, err = d.db.IsStakeTxUsed(ctx, stakeTx)
		return err
	})
	return
}

func (d *DbWithMetrics) GetStakePositionByID(ctx context.Context, id string) (result *model.StakePosition, err error) {
	//nolint:errcheck
	d.run("GetStakePositionByID", func() error {
		result, err = d.db.GetStakePositionByID(ctx, id)
		return err
	})
	return
}

func (d *DbWithMetrics) GetActivePositionsByUser(ctx context.Context, userID string) (result []*model.StakePosition, err error) {
	//nolint:errcheck
	d.run("GetActivePositionsByUser", func() error {
		result, err = d.db.GetActivePositionsByUser(ctx, userID)
		return err
	})
	return
}

func (d *DbWithMetrics) SetAutoCompound(ctx context.Context, userID, positionID string, enabled bool) error {
	return d.run("SetAutoCompound", func() error {
		return d.db.SetAutoCompound(ctx, userID, positionID, enabled)
	})
}

func (d *DbWithMetrics) FindAutoCompoundPositions(ctx context.Context, afterID string, limit int64) (result []*model.StakePosition, err error) {
	//nolint:errcheck
	d.run("FindAutoCompoundPositions", func() error {
		result, err = d.db.FindAutoCompoundPositions(ctx, afterID, limit)
		return err
	})
	return
}

func (d *DbWithMetrics) GetActiveStakeStats(ctx context.Context) (result *ActiveStakeStats, err error) {
	//nolint:errcheck
	d.run("GetActiveStakeStats", func() error {
		result, err = d.db.GetActiveStakeStats(ctx)
		return err
	})
	return
}

func (d *DbWithMetrics) GetActivePositionsGroupedByUser(ctx context.Context) (result []UserPositions, err error) {
	//nolint:errcheck
	d.run("GetActivePositionsGroupedByUser", func() error {
		result, err = d.db.GetActivePositionsGroupedByUser(ctx)
		return err
	})
	return
}

func (d *DbWithMetrics) WithPositionLock(ctx context.Context, userID string, fn LockedFunc) error {
	return d.run("WithPositionLock", func() error {
		return d.db.WithPositionLock(ctx, userID, fn)
	})
}

func (d *DbWithMetrics) GetLatestRewardClaim(ctx context.Context, userID string) (result *model.RewardClaim, err error) {
	//nolint:errcheck
	d.run("GetLatestRewardClaim", func() error {
		result, err = d.db.GetLatestRewardClaim(ctx, userID)
		return err
	})
	return
}

func (d *DbWithMetrics) SaveFeeSnapshot(ctx context.Context, snapshot *model.FeeSnapshot) error {
	return d.run("SaveFeeSnapshot", func() error {
		return d.db.SaveFeeSnapshot(ctx, snapshot)
	})
}

func (d *DbWithMetrics) GetFeeSnapshotByDistribution(ctx context.Context, distributionID string) (result *model.FeeSnapshot, err error) {
	//nolint:errcheck
	d.run("GetFeeSnapshotByDistribution", func() error {
		result, err = d.db.GetFeeSnapshotByDistribution(ctx, distributionID)
		return err
	})
	return
}

func (d *DbWithMetrics) FindFeeSnapshots(ctx context.Context, after *time.Time, from, to time.Time) (result []*model.FeeSnapshot, err error) {
	//nolint:errcheck
	d.run("FindFeeSnapshots", func() error {
		result, err = d.db.FindFeeSnapshots(ctx, after, from, to)
		return err
	})
	return
}

func (d *DbWithMetrics) SaveFeeCollection(ctx context.Context, fee *model.FeeCollection) error {
	return d.run("SaveFeeCollection", func() error {
		return d.db.SaveFeeCollection(ctx, fee)
	})
}

func (d *DbWithMetrics) FindUncollectedFees(ctx context.Context) (result []*model.FeeCollection, err error) {
	//nolint:errcheck
	d.run("FindUncollectedFees", func() error {
		result, err = d.db.FindUncollectedFees(ctx)
		return err
	})
	return
}

func (d *DbWithMetrics) GetPendingFeeStats(ctx context.Context) (result *PendingFeeStats, err error) {
	//nolint:errcheck
	d.run("GetPendingFeeStats", func() error {
		result, err = d.db.GetPendingFeeStats(ctx)
		return err
	})
	return
}

func (d *DbWithMetrics) MarkFeesCollected(ctx context.Context, ids []string, distributionID string, at time.Time) (result int64, err error) {
	//nolint:errcheck
	d.run("MarkFeesCollected", func() error {
		result, err = d.db.MarkFeesCollected(ctx, ids, distributionID, at)
		return err
	})
	return
}

func (d *DbWithMetrics) SaveNewDistribution(ctx context.Context, distribution *model.TreasuryDistribution) error {
	return d.run("SaveNewDistribution", func() error {
		return d.db.SaveNewDistribution(ctx, distribution)
	})
}

func (d *DbWithMetrics) GetInProgressDistribution(ctx context.Context) (result *model.TreasuryDistribution, err error) {
	//nolint:errcheck
	d.run("GetInProgressDistribution", func() error {
		result, err = d.db.GetInProgressDistribution(ctx)
		return err
	})
	return
}

func (d *DbWithMetrics) UpdateDistributionStep(ctx context.Context, distributionID string, step model.DistributionStep) error {
	return d.run("UpdateDistributionStep", func() error {
		return d.db.UpdateDistributionStep(ctx, distributionID, step)
	})
}

func (d *DbWithMetrics) SetDistributionFeeSnapshot(ctx context.Context, distributionID, snapshotID string) error {
	return d.run("SetDistributionFeeSnapshot", func() error {
		return d.db.SetDistributionFeeSnapshot(ctx, distributionID, snapshotID)
	})
}

func (d *DbWithMetrics) FinalizeDistribution(ctx context.Context, distributionID string, status types.DistributionStatus, at time.Time) error {
	return d.run("FinalizeDistribution", func() error {
		return d.db.FinalizeDistribution(ctx, distributionID, status, at)
	})
}

func (d *DbWithMetrics) GetLatestDistribution(ctx context.Context) (result *model.TreasuryDistribution, err error) {
	//nolint:errcheck
	d.run("GetLatestDistribution", func() error {
		result, err = d.db.GetLatestDistribution(ctx)
		return err
	})
	return
}

func (d *DbWithMetrics) GetDistributionHistory(ctx context.Context, limit int64) (result []*model.TreasuryDistribution, err error) {
	//nolint:errcheck
	d.run("GetDistributionHistory", func() error {
		result, err = d.db.GetDistributionHistory(ctx, limit)
		return err
	})
	return
}

func (d *DbWithMetrics) GetDistributionTotals(ctx context.Context) (result *DistributionTotals, err error) {
	//nolint:errcheck
	d.run("GetDistributionTotals", func() error {
		result, err = d.db.GetDistributionTotals(ctx)
		return err
	})
	return
}

func (d *DbWithMetrics) SaveTreasuryBalance(ctx context.Context, balance *model.TreasuryBalance) error {
	return d.run("SaveTreasuryBalance", func() error {
		return d.db.SaveTreasuryBalance(ctx, balance)
	})
}

func (d *DbWithMetrics) GetLatestTreasuryBalance(ctx context.Context) (result *model.TreasuryBalance, err error) {
	//nolint:errcheck
	d.run("GetLatestTreasuryBalance", func() error {
		result, err = d.db.GetLatestTreasuryBalance(ctx)
		return err
	})
	return
}

func (d *DbWithMetrics) SaveVaultReconciliation(ctx context.Context, rec *model.VaultReconciliation) error {
	return d.run("SaveVaultReconciliation", func() error {
		return d.db.SaveVaultReconciliation(ctx, rec)
	})
}

func (d *DbWithMetrics) GetLatestVaultReconciliation(ctx context.Context) (result *model.VaultReconciliation, err error) {
	//nolint:errcheck
	d.run("GetLatestVaultReconciliation", func() error {
		result, err = d.db.GetLatestVaultReconciliation(ctx)
		return err
	})
	return
}

func (d *DbWithMetrics) AcquireJobLock(ctx context.Context, name, holder string, ttl time.Duration, now time.Time) (result *model.JobLock, err error) {
	//nolint:errcheck
	d.run("AcquireJobLock", func() error {
		result, err = d.db.AcquireJobLock(ctx, name, holder, ttl, now)
		return err
	})
	return
}

func (d *DbWithMetrics) ReleaseJobLock(ctx context.Context, name, token string) error {
	return d.run("ReleaseJobLock", func() error {
		return d.db.ReleaseJobLock(ctx, name, token)
	})
}

func (d *DbWithMetrics) GetJobRun(ctx context.Context, name string) (result *model.JobRun, err error) {
	//nolint:errcheck
	d.run("GetJobRun", func() error {
		result, err = d.db.GetJobRun(ctx, name)
		return err
	})
	return
}

func (d *DbWithMetrics) RecordJobRun(ctx context.Context, name, holder string, at time.Time) error {
	return d.run("RecordJobRun", func() error {
		return d.db.RecordJobRun(ctx, name, holder, at)
	})
}

func (d *DbWithMetrics) SaveTransactionLog(ctx context.Context, txLog *model.TransactionLog) error {
	return d.run("SaveTransactionLog", func() error {
		return d.db.SaveTransactionLog(ctx, txLog)
	})
}

func (d *DbWithMetrics) UpdateTransactionLogStatus(ctx context.Context, reference string, status types.TransactionLogStatus, errMsg string, at time.Time) error {
	return d.run("UpdateTransactionLogStatus", func() error {
		return d.db.UpdateTransactionLogStatus(ctx, reference, status, errMsg, at)
	})
}

func (d *DbWithMetrics) SavePendingSettlement(ctx context.Context, pending *model.PendingSettlement) error {
	return d.run("SavePendingSettlement", func() error {
		return d.db.SavePendingSettlement(ctx, pending)
	})
}

func (d *DbWithMetrics) HasPendingSettlement(ctx context.Context, userID string) (result bool, err error) {
	//nolint:errcheck
	d.run("HasPendingSettlement", func() error {
		result, err = d.db.HasPendingSettlement(ctx, userID)
		return err
	})
	return
}

func (d *DbWithMetrics) FindPendingSettlementUsers(ctx context.Context) (result []string, err error) {
	//nolint:errcheck
	d.run("FindPendingSettlementUsers", func() error {
		result, err = d.db.FindPendingSettlementUsers(ctx)
		return err
	})
	return
}

func (d *DbWithMetrics) GetReferral(ctx context.Context, refereeUserID string) (result *model.Referral, err error) {
	//nolint:errcheck
	d.run("GetReferral", func() error {
		result, err = d.db.GetReferral(ctx, refereeUserID)
		return err
	})
	return
}

func (d *DbWithMetrics) SaveReferral(ctx context.Context, referral *model.Referral) error {
	return d.run("SaveReferral", func() error {
		return d.db.SaveReferral(ctx, referral)
	})
}

func (d *DbWithMetrics) SaveReferralBonus(ctx context.Context, bonus *model.ReferralBonus) error {
	return d.run("SaveReferralBonus", func() error {
		return d.db.SaveReferralBonus(ctx, bonus)
	})
}

func (d *DbWithMetrics) UpsertOverallStats(ctx context.Context, stats *model.OverallStatsDocument) error {
	return d.run("UpsertOverallStats", func() error {
		return d.db.UpsertOverallStats(ctx, stats)
	})
}

func (d *DbWithMetrics) GetOverallStats(ctx context.Context) (result *model.OverallStatsDocument, err error) {
	//nolint:errcheck
	d.run("GetOverallStats", func() error {
		result, err = d.db.GetOverallStats(ctx)
		return err
	})
	return
}

// run is private method that executes passed lambda function and send metrics data with spent time, method name
// and an error if any. It returns the error from the lambda function for convenience
func (d *DbWithMetrics) run(method string, f func() error) error {
	startTime := time.Now()
	err := f()
	duration := time.Since(startTime)

	metrics.RecordDbLatency(duration, method, err != nil)
	return err
}
