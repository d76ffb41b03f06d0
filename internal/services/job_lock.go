package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/observability/metrics"
)

const (
	autoCompoundJob   = "auto-compound"
	distributionJob   = "treasury-distribution"
	reconciliationJob = "vault-reconciliation"
	statsJob          = "stats"
)

// runWithJobLock runs f only if this instance holds the named job lock. A
// lock held by another instance is not an error: the run is skipped.
func (s *Service) runWithJobLock(ctx context.Context, job string, ttl time.Duration, f func(ctx context.Context) error) error {
	_, err := s.tryJobLock(ctx, job, ttl, f)
	return err
}

// tryJobLock is runWithJobLock reporting whether f ran.
func (s *Service) tryJobLock(ctx context.Context, job string, ttl time.Duration, f func(ctx context.Context) error) (bool, error) {
	lock, err := s.db.AcquireJobLock(ctx, job, s.instanceID, ttl, s.clock.Now())
	if err != nil {
		return false, fmt.Errorf("failed to acquire %s lock: %w", job, err)
	}
	if lock == nil {
		log.Ctx(ctx).Debug().Str("job", job).Msg("job lock held by another instance, skipping run")
		metrics.RecordJobLockSkipped(job)
		return false, nil
	}

	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		if err := s.db.ReleaseJobLock(releaseCtx, job, lock.Token); err != nil {
			// the lease expires on its own
			log.Ctx(ctx).Warn().Err(err).Str("job", job).Msg("failed to release job lock")
		}
	}()

	return true, f(ctx)
}

// cadenceDue reports whether a job last run at last is due again. Pollers of
// different instances tick from their own start time, so a run up to 1/24
// of the interval early still counts as due.
func cadenceDue(last, now time.Time, interval time.Duration) bool {
	return now.Sub(last) >= interval-interval/24
}

// runScheduledJob is runWithJobLock for a periodic job whose cadence is
// shared by all instances. f is skipped when the job completed anywhere less
// than one interval ago, and a successful run is recorded.
func (s *Service) runScheduledJob(
	ctx context.Context, job string, ttl, interval time.Duration, f func(ctx context.Context) error,
) error {
	return s.runWithJobLock(ctx, job, ttl, func(ctx context.Context) error {
		now := s.clock.Now()
		last, err := s.db.GetJobRun(ctx, job)
		switch {
		case err == nil:
			if !cadenceDue(last.LastRunAt, now, interval) {
				log.Ctx(ctx).Debug().
					Str("job", job).
					Time("last_run", last.LastRunAt).
					Msg("job ran recently, skipping run")
				return nil
			}
		case db.IsNotFoundError(err):
		default:
			return fmt.Errorf("failed to get last %s run: %w", job, err)
		}

		if err := f(ctx); err != nil {
			return err
		}
		if err := s.db.RecordJobRun(ctx, job, s.instanceID, now); err != nil {
			return fmt.Errorf("failed to record %s run: %w", job, err)
		}
		return nil
	})
}
