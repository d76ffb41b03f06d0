// Package memdb is an in-memory implementation of db.DbInterface. It keeps
// the ledger semantics of the mongo implementation (unique references,
// status guarded updates, per-user position locks) and is used by service
// tests and local runs without a database.
package memdb

import (
	"context"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
)

const (
	defaultLockWait  = 10 * time.Second
	defaultTxTimeout = 60 * time.Second
)

var _ db.DbInterface = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	positions       map[string]*model.StakePosition
	claims          []*model.RewardClaim
	claimRefs       map[string]struct{}
	snapshots       map[string]*model.FeeSnapshot
	fees            map[string]*model.FeeCollection
	distributions   map[string]*model.TreasuryDistribution
	balances        []*model.TreasuryBalance
	reconciliations []*model.VaultReconciliation
	jobLocks        map[string]*model.JobLock
	jobRuns         map[string]*model.JobRun
	txLogs          map[string]*model.TransactionLog
	referrals       map[string]*model.Referral
	referralBonuses map[string]*model.ReferralBonus
	pending         map[string]*model.PendingSettlement
	stats           *model.OverallStatsDocument

	locksMu   sync.Mutex
	userLocks map[string]chan struct{}
	lockWait  time.Duration
	txTimeout time.Duration
}

type Option func(*Store)

// WithLockTimeouts overrides the position lock wait and transaction timeouts.
func WithLockTimeouts(wait, tx time.Duration) Option {
	return func(s *Store) {
		s.lockWait = wait
		s.txTimeout = tx
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		positions:       make(map[string]*model.StakePosition),
		claimRefs:       make(map[string]struct{}),
		snapshots:       make(map[string]*model.FeeSnapshot),
		fees:            make(map[string]*model.FeeCollection),
		distributions:   make(map[string]*model.TreasuryDistribution),
		jobLocks:        make(map[string]*model.JobLock),
		jobRuns:         make(map[string]*model.JobRun),
		txLogs:          make(map[string]*model.TransactionLog),
		referrals:       make(map[string]*model.Referral),
		referralBonuses: make(map[string]*model.ReferralBonus),
		pending:         make(map[string]*model.PendingSettlement),
		userLocks:       make(map[string]chan struct{}),
		lockWait:        defaultLockWait,
		txTimeout:       defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func copyPosition(p *model.StakePosition) *model.StakePosition {
	c := *p
	return &c
}

func copyClaim(c *model.RewardClaim) *model.RewardClaim {
	cp := *c
	cp.PositionIDs = append([]string(nil), c.PositionIDs...)
	return &cp
}

func copyPending(p *model.PendingSettlement) *model.PendingSettlement {
	c := *p
	c.PositionIDs = append([]string(nil), p.PositionIDs...)
	return &c
}

func copyDistribution(d *model.TreasuryDistribution) *model.TreasuryDistribution {
	c := *d
	c.Steps = append([]model.DistributionStep(nil), d.Steps...)
	c.FeeCollectionIDs = append([]string(nil), d.FeeCollectionIDs...)
	if d.SourceBreakdown != nil {
		c.SourceBreakdown = make(map[string]sdkmath.Int, len(d.SourceBreakdown))
		for k, v := range d.SourceBreakdown {
			c.SourceBreakdown[k] = v
		}
	}
	return &c
}
