package metrics

import (
	"context"
	"time"
)

type jobFunc = func(ctx context.Context) error

// RecordJobRun wraps one scheduled job so that each run reports its
// duration and, on success, the time it finished.
func RecordJobRun(job string, f jobFunc) jobFunc {
	return func(ctx context.Context) error {
		started := time.Now()
		err := f(ctx)

		jobDurationHistogram.
			WithLabelValues(job, outcome(err != nil).String()).
			Observe(time.Since(started).Seconds())
		if err == nil {
			jobLastSuccessGauge.WithLabelValues(job).SetToCurrentTime()
		}
		return err
	}
}
