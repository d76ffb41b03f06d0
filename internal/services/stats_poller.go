package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/observability/metrics"
	"github.com/mvgalabs/staking-rewards-service/internal/utils/poller"
)

// StartStatsPoller starts the stats polling service
func (s *Service) StartStatsPoller(ctx context.Context) {
	statsPoller := poller.NewPoller(
		statsJob,
		s.cfg.Poller.StatsPollingInterval,
		s.clock,
		metrics.RecordJobRun(statsJob, s.calculateAndUpdateStats),
	)
	go statsPoller.Start(ctx)
}

// calculateAndUpdateStats refreshes the cached pool statistics and the
// active stake gauges
func (s *Service) calculateAndUpdateStats(ctx context.Context) error {
	stats, err := s.poolStats(ctx)
	if err != nil {
		return err
	}

	weight, err := s.TotalStakeWeight(ctx)
	if err != nil {
		return err
	}

	doc := &model.OverallStatsDocument{
		TotalStaked:       stats.TotalStaked,
		StakerCount:       stats.StakerCount,
		ActivePositions:   stats.ActivePositions,
		TotalWeight:       weight,
		ParticipationRate: stats.ParticipationRate.String(),
		DynamicAPY:        stats.DynamicAPY.String(),
		LastUpdated:       s.clock.Now().Unix(),
	}
	if err := s.db.UpsertOverallStats(ctx, doc); err != nil {
		return fmt.Errorf("failed to upsert overall stats: %w", err)
	}

	metrics.RecordActiveStake(s.tokens(stats.TotalStaked), stats.StakerCount)

	log.Ctx(ctx).Debug().
		Stringer("total_staked", stats.TotalStaked).
		Uint64("stakers", stats.StakerCount).
		Uint64("positions", stats.ActivePositions).
		Msg("updated overall stats")

	return nil
}
