package services

import (
	"context"
	"fmt"
	"os"

	sdkmath "cosmossdk.io/math"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/mvgalabs/staking-rewards-service/internal/clients/solclient"
	"github.com/mvgalabs/staking-rewards-service/internal/config"
	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/observability/metrics"
	"github.com/mvgalabs/staking-rewards-service/internal/queue"
	"github.com/mvgalabs/staking-rewards-service/internal/rewards"
	"github.com/mvgalabs/staking-rewards-service/internal/utils/poller"
	"github.com/mvgalabs/staking-rewards-service/pkg"
)

type Service struct {
	cfg      *config.Config
	db       db.DbInterface
	vault    solclient.SettlementInterface
	treasury solclient.SettlementInterface
	resolver *rewards.Resolver
	split    rewards.SplitRatios
	// reconciliation thresholds in percent
	warningPercent  sdkmath.LegacyDec
	criticalPercent sdkmath.LegacyDec

	publisher  queue.EventPublisher
	referrals  ReferralPayout
	clock      clockwork.Clock
	instanceID string

	sideEffects conc.WaitGroup
}

// NewService wires the staking service. vault must always be set, it is
// read-only when no vault signer is configured. treasury is nil when no
// treasury signer is configured, which disables distributions and
// referral bonuses.
func NewService(
	cfg *config.Config,
	db db.DbInterface,
	vault solclient.SettlementInterface,
	treasury solclient.SettlementInterface,
	publisher queue.EventPublisher,
	clock clockwork.Clock,
) (*Service, error) {
	params, err := rewards.NewParams(&cfg.Staking)
	if err != nil {
		return nil, fmt.Errorf("invalid staking params: %w", err)
	}
	warning, err := sdkmath.LegacyNewDecFromStr(cfg.Vault.WarningThresholdPercent)
	if err != nil {
		return nil, fmt.Errorf("invalid warning threshold: %w", err)
	}
	critical, err := sdkmath.LegacyNewDecFromStr(cfg.Vault.CriticalThresholdPercent)
	if err != nil {
		return nil, fmt.Errorf("invalid critical threshold: %w", err)
	}
	if publisher == nil {
		publisher = queue.NoopPublisher{}
	}

	s := &Service{
		cfg:             cfg,
		db:              db,
		vault:           vault,
		treasury:        treasury,
		resolver:        rewards.NewResolver(params),
		split:           rewards.NewSplitRatios(&cfg.Treasury),
		warningPercent:  warning,
		criticalPercent: critical,
		publisher:       publisher,
		clock:           clock,
		instanceID:      newInstanceID(),
	}
	s.referrals = &treasuryReferralPayout{s: s}

	if !vault.CanSign() {
		log.Warn().Msg("vault signer not configured: claims and unstakes are disabled")
	}
	if treasury == nil {
		log.Warn().Msg("treasury signer not configured: distributions and referral bonuses are disabled")
	}

	return s, nil
}

// WithReferralPayout replaces the referral bonus trigger.
func (s *Service) WithReferralPayout(r ReferralPayout) *Service {
	s.referrals = r
	return s
}

func newInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "-" + pkg.RandString(8)
}

// StartJobs starts every scheduled job on its own poller.
func (s *Service) StartJobs(ctx context.Context) {
	pollers := []*poller.Poller{
		poller.NewPoller(
			autoCompoundJob,
			s.cfg.Poller.AutoCompoundInterval,
			s.clock,
			metrics.RecordJobRun(autoCompoundJob, s.RunAutoCompound),
		),
		poller.NewPoller(
			distributionJob,
			s.cfg.Poller.DistributionInterval,
			s.clock,
			metrics.RecordJobRun(distributionJob, s.RunDistribution),
		),
		poller.NewPoller(
			reconciliationJob,
			s.cfg.Poller.ReconciliationInterval,
			s.clock,
			metrics.RecordJobRun(reconciliationJob, s.RunReconciliation),
		),
	}
	for _, p := range pollers {
		go p.Start(ctx)
	}

	s.StartStatsPoller(ctx)
}

// WaitSideEffects blocks until every post-commit side effect started so far
// has finished.
func (s *Service) WaitSideEffects() {
	s.sideEffects.Wait()
}

// runSideEffect runs f after the primary transaction committed. It gets a
// context detached from the caller's cancellation and bounded by the side
// effect timeout. Its failures are logged by f and never reach the caller.
func (s *Service) runSideEffect(ctx context.Context, f func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	s.sideEffects.Go(func() {
		ctx, cancel := context.WithTimeout(detached, s.cfg.Poller.SideEffectTimeout)
		defer cancel()
		f(ctx)
	})
}

func (s *Service) publish(ctx context.Context, event *queue.StakingEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		metrics.RecordQueueSendError()
		log.Ctx(ctx).Error().Err(err).Str("event", event.Type.String()).Msg("failed to publish event")
	}
}

// tokens converts a raw amount to whole tokens for metrics.
func (s *Service) tokens(amount sdkmath.Int) float64 {
	v, err := sdkmath.LegacyNewDecFromInt(amount).QuoInt(s.resolver.Params().Unit).Float64()
	if err != nil {
		return 0
	}
	return v
}
