package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithJobLock(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)

	t.Run("releases the lock after the run", func(t *testing.T) {
		runs := 0
		for range 2 {
			err := env.svc.runWithJobLock(ctx, "test-job", time.Hour, func(context.Context) error {
				runs++
				return nil
			})
			require.NoError(t, err)
		}
		assert.Equal(t, 2, runs)
	})

	t.Run("releases the lock when the run fails", func(t *testing.T) {
		boom := errors.New("boom")
		err := env.svc.runWithJobLock(ctx, "failing-job", time.Hour, func(context.Context) error { return boom })
		require.ErrorIs(t, err, boom)

		ran, err := env.svc.tryJobLock(ctx, "failing-job", time.Hour, func(context.Context) error { return nil })
		require.NoError(t, err)
		assert.True(t, ran)
	})

	t.Run("skips while another instance holds the lease", func(t *testing.T) {
		lock, err := env.store.AcquireJobLock(ctx, "held-job", "other", time.Hour, env.clock.Now())
		require.NoError(t, err)
		require.NotNil(t, lock)

		ran, err := env.svc.tryJobLock(ctx, "held-job", time.Hour, func(context.Context) error {
			t.Fatal("must not run")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, ran)

		env.clock.Advance(2 * time.Hour)
		ran, err = env.svc.tryJobLock(ctx, "held-job", time.Hour, func(context.Context) error { return nil })
		require.NoError(t, err)
		assert.True(t, ran)
	})
}
