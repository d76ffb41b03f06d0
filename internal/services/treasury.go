package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/mvgalabs/staking-rewards-service/internal/clients/solclient"
	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/observability/metrics"
	"github.com/mvgalabs/staking-rewards-service/internal/queue"
	"github.com/mvgalabs/staking-rewards-service/internal/rewards"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
	"github.com/mvgalabs/staking-rewards-service/pkg"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

type RecordFeeRequest struct {
	Source      types.FeeSource
	Amount      sdkmath.Int
	Token       string
	TxReference string
	RelatedTx   string
}

// RecordFee stores a protocol fee for the next distribution.
func (s *Service) RecordFee(ctx context.Context, req RecordFeeRequest) (*model.FeeCollection, *types.Error) {
	if !req.Source.IsValid() {
		return nil, types.NewValidationError("invalid fee source %q", req.Source)
	}
	if req.Amount.IsNil() || !req.Amount.IsPositive() {
		return nil, types.NewValidationError("fee amount must be positive")
	}

	fee := &model.FeeCollection{
		ID:          uuid.NewString(),
		Source:      req.Source,
		Amount:      req.Amount,
		Token:       req.Token,
		TxReference: req.TxReference,
		RelatedTx:   req.RelatedTx,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.db.SaveFeeCollection(ctx, fee); err != nil {
		if db.IsDuplicateKeyError(err) {
			return nil, types.NewConflictError(fmt.Sprintf("fee %s already recorded", req.TxReference))
		}
		return nil, types.NewInternalServiceError(fmt.Errorf("failed to save fee: %w", err))
	}

	log.Ctx(ctx).Debug().
		Stringer("source", req.Source).
		Stringer("amount", req.Amount).
		Msg("fee recorded")
	return fee, nil
}

// RunDistribution executes the weekly treasury distribution, or resumes an
// interrupted one. A new cycle starts only when the latest one, from any
// instance, is at least one distribution interval old.
func (s *Service) RunDistribution(ctx context.Context) error {
	return s.runWithJobLock(ctx, distributionJob, s.cfg.Poller.DistributionLockTTL, func(ctx context.Context) error {
		_, err := s.distribute(ctx, false)
		return err
	})
}

// TriggerDistribution runs the distribution now, regardless of when the
// last cycle ran. It returns nil when there was nothing to distribute.
func (s *Service) TriggerDistribution(ctx context.Context) (*model.TreasuryDistribution, *types.Error) {
	if s.treasury == nil || !s.treasury.CanSign() {
		return nil, types.NewUnavailableError("treasury distribution is not configured")
	}

	var distribution *model.TreasuryDistribution
	ran, err := s.tryJobLock(ctx, distributionJob, s.cfg.Poller.DistributionLockTTL, func(ctx context.Context) error {
		var err error
		distribution, err = s.distribute(ctx, true)
		return err
	})
	if err != nil {
		return nil, types.NewInternalServiceError(err)
	}
	if !ran {
		return nil, types.NewConflictError("a distribution is already running")
	}
	return distribution, nil
}

func (s *Service) distribute(ctx context.Context, force bool) (*model.TreasuryDistribution, error) {
	if s.treasury == nil || !s.treasury.CanSign() {
		log.Ctx(ctx).Debug().Msg("treasury not configured, skipping distribution")
		return nil, nil
	}

	d, err := s.db.GetInProgressDistribution(ctx)
	switch {
	case err == nil:
		log.Ctx(ctx).Warn().Str("distribution_id", d.ID).Msg("resuming interrupted distribution")
	case db.IsNotFoundError(err):
		if !force {
			due, err := s.distributionDue(ctx)
			if err != nil || !due {
				return nil, err
			}
		}
		d, err = s.newDistribution(ctx)
		if err != nil || d == nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to get in progress distribution: %w", err)
	}

	pending, err := s.executeSteps(ctx, d)
	if err != nil {
		return d, err
	}
	if pending {
		log.Ctx(ctx).Warn().
			Str("distribution_id", d.ID).
			Msg("distribution has an unconfirmed transfer, resuming on next run")
		return d, nil
	}

	if err := s.finalizeDistribution(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

// distributionDue reports whether a distribution interval has passed since
// the latest cycle.
func (s *Service) distributionDue(ctx context.Context) (bool, error) {
	latest, err := s.db.GetLatestDistribution(ctx)
	if err != nil {
		if db.IsNotFoundError(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to get latest distribution: %w", err)
	}
	if cadenceDue(latest.CreatedAt, s.clock.Now(), s.cfg.Poller.DistributionInterval) {
		return true, nil
	}
	log.Ctx(ctx).Info().
		Str("distribution_id", latest.ID).
		Time("created_at", latest.CreatedAt).
		Msg("distribution ran recently, skipping run")
	return false, nil
}

// newDistribution captures the uncollected fees into a new IN_PROGRESS
// cycle. It returns nil when there is nothing to distribute.
func (s *Service) newDistribution(ctx context.Context) (*model.TreasuryDistribution, error) {
	fees, err := s.db.FindUncollectedFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find uncollected fees: %w", err)
	}
	if len(fees) == 0 {
		log.Ctx(ctx).Info().Msg("no uncollected fees, skipping distribution")
		return nil, nil
	}

	total := sdkmath.ZeroInt()
	breakdown := make(map[string]sdkmath.Int)
	ids := make([]string, len(fees))
	periodStart := fees[0].CreatedAt
	for i, fee := range fees {
		total = total.Add(fee.Amount)
		source := fee.Source.String()
		if current, ok := breakdown[source]; ok {
			breakdown[source] = current.Add(fee.Amount)
		} else {
			breakdown[source] = fee.Amount
		}
		ids[i] = fee.ID
		if fee.CreatedAt.Before(periodStart) {
			periodStart = fee.CreatedAt
		}
	}
	if !total.IsPositive() {
		log.Ctx(ctx).Info().Msg("uncollected fees total zero, skipping distribution")
		return nil, nil
	}

	now := s.clock.Now()
	if last, err := s.db.GetLatestDistribution(ctx); err == nil && last.PeriodEnd.Before(periodStart) {
		periodStart = last.PeriodEnd
	}

	split := s.split.Split(total)
	tcfg := s.cfg.Treasury
	d := &model.TreasuryDistribution{
		ID:                uuid.NewString(),
		TotalAmount:       total,
		BurnAmount:        split.Burn,
		LiquidityAmount:   split.Liquidity,
		StakingAmount:     split.Staking,
		VaultRefillAmount: split.VaultRefill,
		FeeShareAmount:    split.FeeShare,
		GrantsAmount:      split.Grants,
		SourceBreakdown:   breakdown,
		Status:            types.DistributionInProgress,
		Steps: []model.DistributionStep{
			{Name: types.StepBurn, Amount: split.Burn},
			{Name: types.StepLiquidity, Amount: split.Liquidity, Destination: tcfg.LiquidityWallet},
			{Name: types.StepStaking, Amount: split.VaultRefill, Destination: tcfg.StakingVaultWallet},
			{Name: types.StepGrants, Amount: split.Grants, Destination: tcfg.GrantsWallet},
			{Name: types.StepFeeSnapshot, Amount: split.FeeShare},
			{Name: types.StepMarkCollected, Amount: total},
		},
		FeeCollectionIDs: ids,
		PeriodStart:      periodStart,
		PeriodEnd:        now,
		CreatedAt:        now,
	}
	for i := range d.Steps {
		d.Steps[i].Status = types.StepPending
	}

	if err := s.db.SaveNewDistribution(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save distribution: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("distribution_id", d.ID).
		Stringer("total", total).
		Int("fees", len(fees)).
		Msg("distribution started")
	return d, nil
}

// executeSteps runs every step that is not final yet, in order. It stops
// early, reporting pending, when a transfer is sent but not confirmed.
func (s *Service) executeSteps(ctx context.Context, d *model.TreasuryDistribution) (bool, error) {
	for _, name := range types.DistributionStepOrder {
		step := d.Step(name)
		if step == nil || step.Status.IsFinal() {
			continue
		}

		var (
			pending bool
			err     error
		)
		switch name {
		case types.StepFeeSnapshot:
			err = s.runFeeSnapshotStep(ctx, d, step)
		case types.StepMarkCollected:
			err = s.runMarkCollectedStep(ctx, d, step)
		default:
			pending, err = s.runTransferStep(ctx, d, step)
		}
		if err != nil {
			return false, fmt.Errorf("distribution step %s: %w", name, err)
		}
		if pending {
			return true, nil
		}
	}
	return false, nil
}

// saveStep persists the step. Only a persistence failure is returned, step
// failures are recorded on the step itself.
func (s *Service) saveStep(ctx context.Context, d *model.TreasuryDistribution, step *model.DistributionStep) error {
	if err := s.db.UpdateDistributionStep(ctx, d.ID, *step); err != nil {
		return fmt.Errorf("failed to persist step: %w", err)
	}
	return nil
}

func (s *Service) completeStep(
	ctx context.Context, d *model.TreasuryDistribution, step *model.DistributionStep, status types.StepStatus, reason string,
) error {
	step.Status = status
	step.Error = reason
	step.CompletedAt = pkg.Ptr(s.clock.Now())

	logEvent := log.Ctx(ctx).Info()
	if status == types.StepFailed {
		logEvent = log.Ctx(ctx).Error()
	}
	logEvent.
		Str("distribution_id", d.ID).
		Stringer("step", step.Name).
		Stringer("status", status).
		Stringer("amount", step.Amount).
		Str("tx_ref", step.TxReference).
		Str("reason", reason).
		Msg("distribution step finished")

	return s.saveStep(ctx, d, step)
}

func (s *Service) runTransferStep(ctx context.Context, d *model.TreasuryDistribution, step *model.DistributionStep) (bool, error) {
	if !step.Amount.IsPositive() {
		return false, s.completeStep(ctx, d, step, types.StepSkipped, "nothing to transfer")
	}

	// a step with a reference was signed before: never send it again
	if step.TxReference != "" {
		return s.confirmTransferStep(ctx, d, step)
	}

	step.Status = types.StepInProgress
	step.StartedAt = pkg.Ptr(s.clock.Now())
	if err := s.saveStep(ctx, d, step); err != nil {
		return false, err
	}

	recordRef := solclient.OnSigned(func(ctx context.Context, ref string) error {
		signed := *step
		signed.TxReference = ref
		return s.db.UpdateDistributionStep(ctx, d.ID, signed)
	})

	var (
		ref string
		err error
	)
	if step.Name == types.StepBurn {
		ref, err = s.treasury.Burn(ctx, step.Amount, recordRef)
	} else {
		ref, err = s.treasury.Transfer(ctx, step.Destination, step.Amount, recordRef)
	}
	step.TxReference = ref

	switch {
	case err == nil:
		s.logTransaction(ctx, s.distributionTxLog(step))
		return false, s.completeStep(ctx, d, step, types.StepCompleted, "")
	case errors.Is(err, solclient.ErrUnconfirmed):
		log.Ctx(ctx).Warn().Err(err).
			Str("distribution_id", d.ID).
			Stringer("step", step.Name).
			Str("tx_ref", ref).
			Msg("distribution transfer not confirmed yet")
		return true, nil
	default:
		return false, s.completeStep(ctx, d, step, types.StepFailed, err.Error())
	}
}

func (s *Service) confirmTransferStep(ctx context.Context, d *model.TreasuryDistribution, step *model.DistributionStep) (bool, error) {
	status, err := s.treasury.Confirm(ctx, step.TxReference)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("distribution_id", d.ID).
			Stringer("step", step.Name).
			Str("tx_ref", step.TxReference).
			Msg("failed to confirm distribution transfer")
		return true, nil
	}

	switch status {
	case solclient.ConfirmationConfirmed:
		s.logTransaction(ctx, s.distributionTxLog(step))
		return false, s.completeStep(ctx, d, step, types.StepCompleted, "")
	case solclient.ConfirmationPending:
		return true, nil
	default:
		return false, s.completeStep(ctx, d, step, types.StepFailed, "transaction "+status.String())
	}
}

func (s *Service) distributionTxLog(step *model.DistributionStep) txLogEntry {
	txType := types.TxTypeTreasuryTransfer
	wallet := step.Destination
	if step.Name == types.StepBurn {
		txType = types.TxTypeBurn
		wallet = s.treasury.Address()
	}
	return txLogEntry{
		reference: step.TxReference,
		wallet:    wallet,
		txType:    txType,
		amount:    step.Amount,
	}
}

// runFeeSnapshotStep credits the fee-share bucket to stakers. The bucket is
// only credited when the staking leg was paid, and stays in the treasury
// when nobody stakes.
func (s *Service) runFeeSnapshotStep(ctx context.Context, d *model.TreasuryDistribution, step *model.DistributionStep) error {
	if !step.Amount.IsPositive() {
		return s.completeStep(ctx, d, step, types.StepSkipped, "no fee share")
	}
	if staking := d.Step(types.StepStaking); staking == nil || staking.Status != types.StepCompleted {
		return s.completeStep(ctx, d, step, types.StepSkipped, "staking transfer did not complete")
	}

	existing, err := s.db.GetFeeSnapshotByDistribution(ctx, d.ID)
	if err == nil {
		return s.linkFeeSnapshot(ctx, d, step, existing)
	}
	if !db.IsNotFoundError(err) {
		return fmt.Errorf("failed to get fee snapshot: %w", err)
	}

	weight, err := s.TotalStakeWeight(ctx)
	if err != nil {
		return s.completeStep(ctx, d, step, types.StepFailed, err.Error())
	}
	if !weight.IsPositive() {
		return s.completeStep(ctx, d, step, types.StepSkipped, "no stake weight, fee share retained")
	}

	snapshot := &model.FeeSnapshot{
		ID:             uuid.NewString(),
		DistributionID: d.ID,
		TotalFees:      step.Amount,
		TotalWeight:    weight,
		FeePerWeight:   rewards.FeePerWeight(step.Amount, weight).String(),
		PeriodEnd:      d.PeriodEnd,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.db.SaveFeeSnapshot(ctx, snapshot); err != nil {
		if !db.IsDuplicateKeyError(err) {
			return s.completeStep(ctx, d, step, types.StepFailed, err.Error())
		}
		if snapshot, err = s.db.GetFeeSnapshotByDistribution(ctx, d.ID); err != nil {
			return fmt.Errorf("failed to get fee snapshot: %w", err)
		}
	}

	return s.linkFeeSnapshot(ctx, d, step, snapshot)
}

func (s *Service) linkFeeSnapshot(
	ctx context.Context, d *model.TreasuryDistribution, step *model.DistributionStep, snapshot *model.FeeSnapshot,
) error {
	if err := s.db.SetDistributionFeeSnapshot(ctx, d.ID, snapshot.ID); err != nil {
		return fmt.Errorf("failed to link fee snapshot: %w", err)
	}
	d.FeeSnapshotID = snapshot.ID
	step.TxReference = snapshot.ID
	return s.completeStep(ctx, d, step, types.StepCompleted, "")
}

func (s *Service) runMarkCollectedStep(ctx context.Context, d *model.TreasuryDistribution, step *model.DistributionStep) error {
	marked, err := s.db.MarkFeesCollected(ctx, d.FeeCollectionIDs, d.ID, s.clock.Now())
	if err != nil {
		return s.completeStep(ctx, d, step, types.StepFailed, err.Error())
	}
	if marked != int64(len(d.FeeCollectionIDs)) {
		log.Ctx(ctx).Warn().
			Str("distribution_id", d.ID).
			Int64("marked", marked).
			Int("captured", len(d.FeeCollectionIDs)).
			Msg("some captured fees were already collected")
	}
	return s.completeStep(ctx, d, step, types.StepCompleted, "")
}

func (s *Service) finalizeDistribution(ctx context.Context, d *model.TreasuryDistribution) error {
	status := types.DistributionCompleted
	for _, step := range d.Steps {
		if step.Status == types.StepFailed && step.Name.IsCriticalStep() {
			status = types.DistributionFailed
		}
	}

	now := s.clock.Now()
	if err := s.db.FinalizeDistribution(ctx, d.ID, status, now); err != nil {
		return fmt.Errorf("failed to finalize distribution: %w", err)
	}
	d.Status = status
	d.ExecutedAt = &now
	metrics.RecordDistribution(status.String())

	logEvent := log.Ctx(ctx).Info()
	if status == types.DistributionFailed {
		logEvent = log.Ctx(ctx).Error()
	}
	logEvent.
		Str("distribution_id", d.ID).
		Stringer("status", status).
		Stringer("total", d.TotalAmount).
		Msg("distribution finalized")

	event := queue.NewStakingEvent(types.EventDistributionFinalized, "", now)
	event.Amount = d.TotalAmount.String()
	event.Details = map[string]string{
		"distribution_id": d.ID,
		"status":          status.String(),
	}
	s.publish(ctx, event)

	if err := s.snapshotTreasuryBalances(ctx, d.ID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("distribution_id", d.ID).Msg("failed to snapshot treasury balances")
	}
	return nil
}

// snapshotTreasuryBalances stores the live balances of the treasury side
// wallets next to the cumulative distribution totals.
func (s *Service) snapshotTreasuryBalances(ctx context.Context, distributionID string) error {
	tcfg := s.cfg.Treasury
	balance := &model.TreasuryBalance{
		ID:             uuid.NewString(),
		DistributionID: distributionID,
		SnapshotAt:     s.clock.Now(),
	}

	p := pool.New().WithContext(ctx)
	read := func(owner string, into *sdkmath.Int) {
		p.Go(func(ctx context.Context) error {
			amount, err := s.treasury.GetBalance(ctx, owner)
			if err != nil {
				return fmt.Errorf("failed to read balance of %s: %w", owner, err)
			}
			*into = amount
			return nil
		})
	}
	read(s.treasury.Address(), &balance.Treasury)
	read(tcfg.LiquidityWallet, &balance.Liquidity)
	read(tcfg.StakingVaultWallet, &balance.StakingVault)
	read(tcfg.GrantsWallet, &balance.Grants)
	if err := p.Wait(); err != nil {
		return err
	}

	totals, err := s.db.GetDistributionTotals(ctx)
	if err != nil {
		return fmt.Errorf("failed to get distribution totals: %w", err)
	}
	balance.TotalRevenue = totals.TotalRevenue
	balance.TotalBurned = totals.TotalBurned
	balance.TotalLiquidity = totals.TotalLiquidity
	balance.TotalVaultRefill = totals.TotalVaultRefill
	balance.TotalFeeShare = totals.TotalFeeShare
	balance.TotalGrants = totals.TotalGrants

	if err := s.db.SaveTreasuryBalance(ctx, balance); err != nil {
		return fmt.Errorf("failed to save treasury balance: %w", err)
	}
	return nil
}

type TreasuryStats struct {
	Balance            *model.TreasuryBalance
	PendingFees        sdkmath.Int
	PendingFeeCount    uint64
	Totals             *db.DistributionTotals
	LastDistribution   *model.TreasuryDistribution
	NextDistributionAt time.Time
}

// GetTreasuryStats returns the latest balances, pending fees and the
// cumulative distribution totals.
func (s *Service) GetTreasuryStats(ctx context.Context) (*TreasuryStats, *types.Error) {
	stats := &TreasuryStats{}

	balance, err := s.db.GetLatestTreasuryBalance(ctx)
	if err != nil && !db.IsNotFoundError(err) {
		return nil, types.NewInternalServiceError(fmt.Errorf("failed to get treasury balance: %w", err))
	}
	stats.Balance = balance

	pending, err := s.db.GetPendingFeeStats(ctx)
	if err != nil {
		return nil, types.NewInternalServiceError(fmt.Errorf("failed to get pending fees: %w", err))
	}
	stats.PendingFees = pending.Total
	stats.PendingFeeCount = pending.Count

	totals, err := s.db.GetDistributionTotals(ctx)
	if err != nil {
		return nil, types.NewInternalServiceError(fmt.Errorf("failed to get distribution totals: %w", err))
	}
	stats.Totals = totals

	last, err := s.db.GetLatestDistribution(ctx)
	switch {
	case err == nil:
		stats.LastDistribution = last
		stats.NextDistributionAt = last.CreatedAt.Add(s.cfg.Poller.DistributionInterval)
	case db.IsNotFoundError(err):
		stats.NextDistributionAt = s.clock.Now()
	default:
		return nil, types.NewInternalServiceError(fmt.Errorf("failed to get latest distribution: %w", err))
	}

	return stats, nil
}

// GetDistributionHistory returns the latest distributions, newest first.
func (s *Service) GetDistributionHistory(ctx context.Context, limit int64) ([]*model.TreasuryDistribution, *types.Error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return nil, types.NewErrorWithMsg(
			http.StatusBadRequest, types.ValidationError,
			fmt.Sprintf("limit must not exceed %d", maxHistoryLimit),
		)
	}

	history, err := s.db.GetDistributionHistory(ctx, limit)
	if err != nil {
		return nil, types.NewInternalServiceError(fmt.Errorf("failed to get distribution history: %w", err))
	}
	return history, nil
}
