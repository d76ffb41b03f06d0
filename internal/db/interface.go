package db

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

type DbInterface interface {
	Ping(ctx context.Context) error

	/*
		Stake positions
	*/
	// SaveNewStakePosition inserts a position. A reused stake tx returns a
	// DuplicateKeyError.
	SaveNewStakePosition(ctx context.Context, position *model.StakePosition) error
	IsStakeTxUsed(ctx context.Context, stakeTx string) (bool, error)
	GetStakePositionByID(ctx context.Context, id string) (*model.StakePosition, error)
	// GetActivePositionsByUser returns the user's ACTIVE positions, oldest first.
	GetActivePositionsByUser(ctx context.Context, userID string) ([]*model.StakePosition, error)
	SetAutoCompound(ctx context.Context, userID, positionID string, enabled bool) error
	// FindAutoCompoundPositions pages over opted-in ACTIVE positions ordered by
	// id, starting after the given id.
	FindAutoCompoundPositions(ctx context.Context, afterID string, limit int64) ([]*model.StakePosition, error)
	GetActiveStakeStats(ctx context.Context) (*ActiveStakeStats, error)
	GetActivePositionsGroupedByUser(ctx context.Context) ([]UserPositions, error)
	// WithPositionLock runs fn with every ACTIVE position of the user locked
	// inside one transaction. fn runs once; the transaction commits only when
	// fn returns nil.
	WithPositionLock(ctx context.Context, userID string, fn LockedFunc) error

	/*
		Reward claims
	*/
	// GetLatestRewardClaim returns NotFoundError if the user never claimed.
	GetLatestRewardClaim(ctx context.Context, userID string) (*model.RewardClaim, error)

	/*
		Fee snapshots and fee collections
	*/
	SaveFeeSnapshot(ctx context.Context, snapshot *model.FeeSnapshot) error
	GetFeeSnapshotByDistribution(ctx context.Context, distributionID string) (*model.FeeSnapshot, error)
	// FindFeeSnapshots returns snapshots with period end in (after, to] and
	// not before from.
	FindFeeSnapshots(ctx context.Context, after *time.Time, from, to time.Time) ([]*model.FeeSnapshot, error)
	SaveFeeCollection(ctx context.Context, fee *model.FeeCollection) error
	FindUncollectedFees(ctx context.Context) ([]*model.FeeCollection, error)
	GetPendingFeeStats(ctx context.Context) (*PendingFeeStats, error)
	// MarkFeesCollected marks exactly the given uncollected fees and returns
	// how many were updated.
	MarkFeesCollected(ctx context.Context, ids []string, distributionID string, at time.Time) (int64, error)

	/*
		Treasury distributions
	*/
	SaveNewDistribution(ctx context.Context, distribution *model.TreasuryDistribution) error
	GetInProgressDistribution(ctx context.Context) (*model.TreasuryDistribution, error)
	UpdateDistributionStep(ctx context.Context, distributionID string, step model.DistributionStep) error
	SetDistributionFeeSnapshot(ctx context.Context, distributionID, snapshotID string) error
	FinalizeDistribution(ctx context.Context, distributionID string, status types.DistributionStatus, at time.Time) error
	GetLatestDistribution(ctx context.Context) (*model.TreasuryDistribution, error)
	GetDistributionHistory(ctx context.Context, limit int64) ([]*model.TreasuryDistribution, error)
	GetDistributionTotals(ctx context.Context) (*DistributionTotals, error)
	SaveTreasuryBalance(ctx context.Context, balance *model.TreasuryBalance) error
	GetLatestTreasuryBalance(ctx context.Context) (*model.TreasuryBalance, error)

	/*
		Vault reconciliation
	*/
	SaveVaultReconciliation(ctx context.Context, rec *model.VaultReconciliation) error
	GetLatestVaultReconciliation(ctx context.Context) (*model.VaultReconciliation, error)

	/*
		Job locks
	*/
	// AcquireJobLock returns nil, nil when the lock is held by someone else.
	AcquireJobLock(ctx context.Context, name, holder string, ttl time.Duration, now time.Time) (*model.JobLock, error)
	ReleaseJobLock(ctx context.Context, name, token string) error
	GetJobRun(ctx context.Context, name string) (*model.JobRun, error)
	RecordJobRun(ctx context.Context, name, holder string, at time.Time) error

	/*
		Transaction logs
	*/
	SaveTransactionLog(ctx context.Context, txLog *model.TransactionLog) error
	UpdateTransactionLogStatus(ctx context.Context, reference string, status types.TransactionLogStatus, errMsg string, at time.Time) error

	/*
		Pending settlements
	*/
	// SavePendingSettlement records a sent payout outside a position lock,
	// for when the locked transaction that sent it could not commit. An
	// already recorded reference is not an error.
	SavePendingSettlement(ctx context.Context, pending *model.PendingSettlement) error
	HasPendingSettlement(ctx context.Context, userID string) (bool, error)
	// FindPendingSettlementUsers lists users with at least one pending
	// settlement.
	FindPendingSettlementUsers(ctx context.Context) ([]string, error)

	/*
		Referrals
	*/
	GetReferral(ctx context.Context, refereeUserID string) (*model.Referral, error)
	SaveReferral(ctx context.Context, referral *model.Referral) error
	SaveReferralBonus(ctx context.Context, bonus *model.ReferralBonus) error

	/*
		Stats
	*/
	UpsertOverallStats(ctx context.Context, stats *model.OverallStatsDocument) error
	GetOverallStats(ctx context.Context) (*model.OverallStatsDocument, error)
}

// LockedFunc is the body of a position-locked transaction.
type LockedFunc func(ctx context.Context, tx LockedTx) error

// LockedTx exposes the mutations allowed while a user's positions are
// locked. Writes become visible only if the transaction commits.
type LockedTx interface {
	// Positions are the locked ACTIVE positions, oldest first.
	Positions() []*model.StakePosition
	LatestRewardClaim(ctx context.Context) (*model.RewardClaim, error)
	SaveRewardClaim(ctx context.Context, claim *model.RewardClaim) error
	// AdvanceLastClaimed sets last_claimed_at on every locked position.
	AdvanceLastClaimed(ctx context.Context, at time.Time) error
	IncrementPrincipal(ctx context.Context, positionID string, amount sdkmath.Int) error
	ReducePrincipal(ctx context.Context, positionID string, amount sdkmath.Int) error
	MarkUnstaked(ctx context.Context, positionID, unstakeTx string, at time.Time) error
	// PendingSettlements are the user's payouts still awaiting confirmation,
	// oldest first.
	PendingSettlements(ctx context.Context) ([]*model.PendingSettlement, error)
	SavePendingSettlement(ctx context.Context, pending *model.PendingSettlement) error
	DeletePendingSettlement(ctx context.Context, reference string) error
}

type ActiveStakeStats struct {
	TotalStaked     sdkmath.Int `bson:"total_staked"`
	StakerCount     uint64      `bson:"staker_count"`
	ActivePositions uint64      `bson:"active_positions"`
}

type UserPositions struct {
	UserID    string                 `bson:"_id"`
	Positions []*model.StakePosition `bson:"positions"`
}

type PendingFeeStats struct {
	Total sdkmath.Int `bson:"total"`
	Count uint64      `bson:"count"`
}

// DistributionTotals are cumulative amounts over COMPLETED distributions.
type DistributionTotals struct {
	TotalRevenue     sdkmath.Int `bson:"total_revenue"`
	TotalBurned      sdkmath.Int `bson:"total_burned"`
	TotalLiquidity   sdkmath.Int `bson:"total_liquidity"`
	TotalVaultRefill sdkmath.Int `bson:"total_vault_refill"`
	TotalFeeShare    sdkmath.Int `bson:"total_fee_share"`
	TotalGrants      sdkmath.Int `bson:"total_grants"`
	Count            uint64      `bson:"count"`
}

func ZeroDistributionTotals() *DistributionTotals {
	return &DistributionTotals{
		TotalRevenue:     sdkmath.ZeroInt(),
		TotalBurned:      sdkmath.ZeroInt(),
		TotalLiquidity:   sdkmath.ZeroInt(),
		TotalVaultRefill: sdkmath.ZeroInt(),
		TotalFeeShare:    sdkmath.ZeroInt(),
		TotalGrants:      sdkmath.ZeroInt(),
	}
}
