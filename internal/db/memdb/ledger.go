package memdb

import (
	"context"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

func (s *Store) GetLatestRewardClaim(_ context.Context, userID string) (*model.RewardClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.RewardClaim
	for _, c := range s.claims {
		if c.UserID != userID {
			continue
		}
		if latest == nil || c.ClaimedAt.After(latest.ClaimedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, &db.NotFoundError{
			Key:     userID,
			Message: "no reward claim for user",
		}
	}
	return copyClaim(latest), nil
}

func (s *Store) SaveFeeSnapshot(_ context.Context, snapshot *model.FeeSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.snapshots {
		if existing.DistributionID == snapshot.DistributionID {
			return &db.DuplicateKeyError{
				Key:     snapshot.DistributionID,
				Message: "fee snapshot already exists for distribution",
			}
		}
	}
	if _, ok := s.snapshots[snapshot.ID]; ok {
		return &db.DuplicateKeyError{
			Key:     snapshot.ID,
			Message: "fee snapshot already exists",
		}
	}

	c := *snapshot
	s.snapshots[snapshot.ID] = &c
	return nil
}

func (s *Store) GetFeeSnapshotByDistribution(_ context.Context, distributionID string) (*model.FeeSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, snapshot := range s.snapshots {
		if snapshot.DistributionID == distributionID {
			c := *snapshot
			return &c, nil
		}
	}
	return nil, &db.NotFoundError{
		Key:     distributionID,
		Message: "fee snapshot not found",
	}
}

func (s *Store) FindFeeSnapshots(_ context.Context, after *time.Time, from, to time.Time) ([]*model.FeeSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.FeeSnapshot
	for _, snapshot := range s.snapshots {
		end := snapshot.PeriodEnd
		if end.Before(from) || end.After(to) {
			continue
		}
		if after != nil && !end.After(*after) {
			continue
		}
		c := *snapshot
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodEnd.Before(out[j].PeriodEnd) })
	return out, nil
}

func (s *Store) SaveFeeCollection(_ context.Context, fee *model.FeeCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fees[fee.ID]; ok {
		return &db.DuplicateKeyError{
			Key:     fee.ID,
			Message: "fee already recorded",
		}
	}
	if fee.TxReference != "" {
		for _, existing := range s.fees {
			if existing.TxReference == fee.TxReference {
				return &db.DuplicateKeyError{
					Key:     fee.TxReference,
					Message: "fee already recorded",
				}
			}
		}
	}

	c := *fee
	s.fees[fee.ID] = &c
	return nil
}

func (s *Store) FindUncollectedFees(_ context.Context) ([]*model.FeeCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.FeeCollection
	for _, fee := range s.fees {
		if !fee.Collected {
			c := *fee
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetPendingFeeStats(_ context.Context) (*db.PendingFeeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &db.PendingFeeStats{Total: sdkmath.ZeroInt()}
	for _, fee := range s.fees {
		if !fee.Collected {
			stats.Total = stats.Total.Add(fee.Amount)
			stats.Count++
		}
	}
	return stats, nil
}

func (s *Store) MarkFeesCollected(_ context.Context, ids []string, distributionID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for _, id := range ids {
		fee, ok := s.fees[id]
		if !ok || fee.Collected {
			continue
		}
		collectedAt := at
		fee.Collected = true
		fee.CollectedAt = &collectedAt
		fee.DistributionID = distributionID
		updated++
	}
	return updated, nil
}

func (s *Store) SaveNewDistribution(_ context.Context, distribution *model.TreasuryDistribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.distributions[distribution.ID]; ok {
		return &db.DuplicateKeyError{
			Key:     distribution.ID,
			Message: "distribution already exists",
		}
	}
	s.distributions[distribution.ID] = copyDistribution(distribution)
	return nil
}

// latestDistributionLocked returns the newest distribution matching keep.
func (s *Store) latestDistributionLocked(keep func(*model.TreasuryDistribution) bool) *model.TreasuryDistribution {
	var latest *model.TreasuryDistribution
	for _, d := range s.distributions {
		if !keep(d) {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	return latest
}

func (s *Store) GetInProgressDistribution(_ context.Context) (*model.TreasuryDistribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := s.latestDistributionLocked(func(d *model.TreasuryDistribution) bool {
		return d.Status == types.DistributionInProgress
	})
	if d == nil {
		return nil, &db.NotFoundError{
			Key:     types.DistributionInProgress.String(),
			Message: "distribution not found",
		}
	}
	return copyDistribution(d), nil
}

func (s *Store) GetLatestDistribution(_ context.Context) (*model.TreasuryDistribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := s.latestDistributionLocked(func(*model.TreasuryDistribution) bool { return true })
	if d == nil {
		return nil, &db.NotFoundError{
			Key:     model.TreasuryDistributionsCollection,
			Message: "distribution not found",
		}
	}
	return copyDistribution(d), nil
}

func (s *Store) UpdateDistributionStep(_ context.Context, distributionID string, step model.DistributionStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.distributions[distributionID]
	if ok && d.Status == types.DistributionInProgress {
		if existing := d.Step(step.Name); existing != nil {
			*existing = step
			return nil
		}
	}
	return &db.NotFoundError{
		Key:     distributionID,
		Message: "in progress distribution with step " + step.Name.String() + " not found",
	}
}

func (s *Store) SetDistributionFeeSnapshot(_ context.Context, distributionID, snapshotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.distributions[distributionID]
	if !ok {
		return &db.NotFoundError{
			Key:     distributionID,
			Message: "distribution not found",
		}
	}
	d.FeeSnapshotID = snapshotID
	return nil
}

func (s *Store) FinalizeDistribution(
	_ context.Context, distributionID string, status types.DistributionStatus, at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.distributions[distributionID]
	if !ok || d.Status != types.DistributionInProgress {
		return &db.NotFoundError{
			Key:     distributionID,
			Message: "in progress distribution not found",
		}
	}
	executedAt := at
	d.Status = status
	d.ExecutedAt = &executedAt
	return nil
}

func (s *Store) GetDistributionHistory(_ context.Context, limit int64) ([]*model.TreasuryDistribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.TreasuryDistribution, 0, len(s.distributions))
	for _, d := range s.distributions {
		out = append(out, copyDistribution(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetDistributionTotals(_ context.Context) (*db.DistributionTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := db.ZeroDistributionTotals()
	for _, d := range s.distributions {
		if d.Status != types.DistributionCompleted {
			continue
		}
		totals.TotalRevenue = addAmount(totals.TotalRevenue, d.TotalAmount)
		totals.TotalBurned = addAmount(totals.TotalBurned, d.BurnAmount)
		totals.TotalLiquidity = addAmount(totals.TotalLiquidity, d.LiquidityAmount)
		totals.TotalVaultRefill = addAmount(totals.TotalVaultRefill, d.VaultRefillAmount)
		totals.TotalFeeShare = addAmount(totals.TotalFeeShare, d.FeeShareAmount)
		totals.TotalGrants = addAmount(totals.TotalGrants, d.GrantsAmount)
		totals.Count++
	}
	return totals, nil
}

// addAmount skips unset amounts the way $sum skips missing fields.
func addAmount(total, amount sdkmath.Int) sdkmath.Int {
	if amount.IsNil() {
		return total
	}
	return total.Add(amount)
}

func (s *Store) SaveTreasuryBalance(_ context.Context, balance *model.TreasuryBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *balance
	s.balances = append(s.balances, &c)
	return nil
}

func (s *Store) GetLatestTreasuryBalance(_ context.Context) (*model.TreasuryBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.TreasuryBalance
	for _, b := range s.balances {
		if latest == nil || !b.SnapshotAt.Before(latest.SnapshotAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, &db.NotFoundError{
			Key:     model.TreasuryBalancesCollection,
			Message: "no treasury balance snapshot",
		}
	}
	c := *latest
	return &c, nil
}

func (s *Store) SaveVaultReconciliation(_ context.Context, rec *model.VaultReconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *rec
	s.reconciliations = append(s.reconciliations, &c)
	return nil
}

func (s *Store) GetLatestVaultReconciliation(_ context.Context) (*model.VaultReconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.VaultReconciliation
	for _, r := range s.reconciliations {
		if latest == nil || !r.CheckedAt.Before(latest.CheckedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, &db.NotFoundError{
			Key:     model.VaultReconciliationsCollection,
			Message: "no vault reconciliation",
		}
	}
	c := *latest
	return &c, nil
}

func (s *Store) AcquireJobLock(
	_ context.Context, name, holder string, ttl time.Duration, now time.Time,
) (*model.JobLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobLocks[name]; ok && existing.ExpiresAt.After(now) {
		return nil, nil
	}

	lock := &model.JobLock{
		Name:       name,
		Holder:     holder,
		Token:      uuid.NewString(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	c := *lock
	s.jobLocks[name] = &c
	return lock, nil
}

func (s *Store) ReleaseJobLock(_ context.Context, name, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobLocks[name]; ok && existing.Token == token {
		delete(s.jobLocks, name)
	}
	return nil
}

func (s *Store) GetJobRun(_ context.Context, name string) (*model.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.jobRuns[name]
	if !ok {
		return nil, &db.NotFoundError{
			Key:     name,
			Message: "job run not found",
		}
	}
	c := *run
	return &c, nil
}

func (s *Store) RecordJobRun(_ context.Context, name, holder string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobRuns[name] = &model.JobRun{Name: name, Holder: holder, LastRunAt: at}
	return nil
}

func (s *Store) SaveTransactionLog(_ context.Context, txLog *model.TransactionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txLogs[txLog.Reference]; ok {
		return &db.DuplicateKeyError{
			Key:     txLog.Reference,
			Message: "transaction log already exists",
		}
	}
	c := *txLog
	s.txLogs[txLog.Reference] = &c
	return nil
}

func (s *Store) UpdateTransactionLogStatus(
	_ context.Context, reference string, status types.TransactionLogStatus, errMsg string, at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txLog, ok := s.txLogs[reference]
	if !ok {
		return &db.NotFoundError{
			Key:     reference,
			Message: "transaction log not found",
		}
	}
	txLog.Status = status
	if status == types.TxLogConfirmed {
		confirmedAt := at
		txLog.ConfirmedAt = &confirmedAt
	}
	if errMsg != "" {
		txLog.Error = errMsg
	}
	return nil
}

// TransactionLog returns a copy of the log row, for assertions in tests.
func (s *Store) TransactionLog(reference string) (*model.TransactionLog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txLog, ok := s.txLogs[reference]
	if !ok {
		return nil, false
	}
	c := *txLog
	return &c, true
}

// RewardClaims returns every committed claim of the user in insertion order.
func (s *Store) RewardClaims(userID string) []*model.RewardClaim {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.RewardClaim
	for _, c := range s.claims {
		if c.UserID == userID {
			out = append(out, copyClaim(c))
		}
	}
	return out
}

// ReferralBonuses returns every recorded referral bonus.
func (s *Store) ReferralBonuses() []*model.ReferralBonus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.ReferralBonus, 0, len(s.referralBonuses))
	for _, b := range s.referralBonuses {
		c := *b
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) GetReferral(_ context.Context, refereeUserID string) (*model.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	referral, ok := s.referrals[refereeUserID]
	if !ok {
		return nil, &db.NotFoundError{
			Key:     refereeUserID,
			Message: "no referrer for user",
		}
	}
	c := *referral
	return &c, nil
}

func (s *Store) SaveReferral(_ context.Context, referral *model.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.referrals[referral.RefereeUserID]; ok {
		return &db.DuplicateKeyError{
			Key:     referral.RefereeUserID,
			Message: "user already has a referrer",
		}
	}
	c := *referral
	s.referrals[referral.RefereeUserID] = &c
	return nil
}

func (s *Store) SaveReferralBonus(_ context.Context, bonus *model.ReferralBonus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.referralBonuses[bonus.ClaimReference]; ok {
		return &db.DuplicateKeyError{
			Key:     bonus.ClaimReference,
			Message: "referral bonus already paid for claim",
		}
	}
	c := *bonus
	s.referralBonuses[bonus.ClaimReference] = &c
	return nil
}

func (s *Store) UpsertOverallStats(_ context.Context, stats *model.OverallStatsDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats.ID = model.OverallStatsID
	c := *stats
	s.stats = &c
	return nil
}

func (s *Store) GetOverallStats(_ context.Context) (*model.OverallStatsDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stats == nil {
		return nil, &db.NotFoundError{
			Key:     model.OverallStatsID,
			Message: "overall stats not computed yet",
		}
	}
	c := *s.stats
	return &c, nil
}
