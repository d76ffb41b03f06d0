package poller

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mvgalabs/staking-rewards-service/internal/observability/tracing"
)

type Poller struct {
	name       string
	interval   time.Duration
	clock      clockwork.Clock
	quit       chan struct{}
	stopOnce   sync.Once
	pollMethod func(ctx context.Context) error
}

func NewPoller(
	name string, interval time.Duration, clock clockwork.Clock, pollMethod func(ctx context.Context) error,
) *Poller {
	return &Poller{
		name:       name,
		interval:   interval,
		clock:      clock,
		quit:       make(chan struct{}),
		pollMethod: pollMethod,
	}
}

// Start runs the poll method on every tick until ctx is done or Stop is
// called. Each run gets its own trace id.
func (p *Poller) Start(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	log.Info().Str("job", p.name).Msgf("Starting poller with interval %s", p.interval)

	for {
		select {
		case <-ticker.Chan():
			runCtx := tracing.InjectJobTraceID(ctx, p.name)
			log.Ctx(runCtx).Debug().Msg("Executing poll method")
			if err := p.pollMethod(runCtx); err != nil {
				log.Ctx(runCtx).Error().Err(err).Msg("Error polling")
			} else {
				log.Ctx(runCtx).Debug().Msg("Poll method executed successfully")
			}
		case <-ctx.Done():
			log.Info().Str("job", p.name).Msg("Poller stopped due to context cancellation")
			return
		case <-p.quit:
			log.Info().Str("job", p.name).Msg("Poller stopped")
			return
		}
	}
}

func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
}
