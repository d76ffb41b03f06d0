package services

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/rewards"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

type PoolStats struct {
	TotalStaked       sdkmath.Int
	StakerCount       uint64
	ActivePositions   uint64
	ParticipationRate sdkmath.LegacyDec
	DynamicMultiplier sdkmath.LegacyDec
	// DynamicAPY is the base APY after the participation band, in percent
	DynamicAPY sdkmath.LegacyDec
}

func toAccrualPositions(positions []*model.StakePosition) []rewards.Position {
	out := make([]rewards.Position, len(positions))
	for i, p := range positions {
		out[i] = rewards.Position{
			ID:             p.ID,
			Principal:      p.Amount,
			LockPeriodDays: p.LockPeriodDays,
			CreatedAt:      p.CreatedAt,
			LastClaimedAt:  p.LastClaimedAt,
		}
	}
	return out
}

func toSnapshots(snapshots []*model.FeeSnapshot) []rewards.Snapshot {
	out := make([]rewards.Snapshot, len(snapshots))
	for i, s := range snapshots {
		out[i] = rewards.Snapshot{
			ID:          s.ID,
			TotalFees:   s.TotalFees,
			TotalWeight: s.TotalWeight,
			PeriodEnd:   s.PeriodEnd,
		}
	}
	return out
}

func (s *Service) poolStats(ctx context.Context) (*PoolStats, error) {
	stats, err := s.db.GetActiveStakeStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active stake stats: %w", err)
	}

	rate := s.resolver.ParticipationRate(stats.TotalStaked)
	return &PoolStats{
		TotalStaked:       stats.TotalStaked,
		StakerCount:       stats.StakerCount,
		ActivePositions:   stats.ActivePositions,
		ParticipationRate: rate,
		DynamicMultiplier: s.resolver.ParticipationMultiplier(rate),
		DynamicAPY:        s.resolver.DynamicAPY(rate),
	}, nil
}

// GetPoolStats returns the live pool statistics.
func (s *Service) GetPoolStats(ctx context.Context) (*PoolStats, *types.Error) {
	stats, err := s.poolStats(ctx)
	if err != nil {
		return nil, types.NewInternalServiceError(err)
	}
	return stats, nil
}

// TotalStakeWeight is the fee-share weight of the whole pool. Each user's
// tier is resolved from the user's own total principal.
func (s *Service) TotalStakeWeight(ctx context.Context) (sdkmath.Int, error) {
	grouped, err := s.db.GetActivePositionsGroupedByUser(ctx)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("failed to group active positions: %w", err)
	}

	byUser := make(map[string][]rewards.Position, len(grouped))
	for _, g := range grouped {
		byUser[g.UserID] = toAccrualPositions(g.Positions)
	}
	return s.resolver.PoolWeight(byUser), nil
}

// computeAccrual returns what the positions of one user have accrued at now.
// Nothing is stored: the window is closed by advancing last_claimed_at.
func (s *Service) computeAccrual(ctx context.Context, positions []*model.StakePosition, now time.Time) (rewards.Accrual, error) {
	stats, err := s.poolStats(ctx)
	if err != nil {
		return rewards.Accrual{}, err
	}

	accrualPositions := toAccrualPositions(positions)
	retention := s.resolver.Params().FeeShareRetention
	snapshots, err := s.db.FindFeeSnapshots(ctx, rewards.LastClaim(accrualPositions), now.Add(-retention), now)
	if err != nil {
		return rewards.Accrual{}, fmt.Errorf("failed to find fee snapshots: %w", err)
	}

	return s.resolver.Accrue(rewards.AccrualInput{
		Positions:         accrualPositions,
		ParticipationRate: stats.ParticipationRate,
		Snapshots:         toSnapshots(snapshots),
		Now:               now,
	}), nil
}
