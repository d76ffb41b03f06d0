package services

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/observability/metrics"
	"github.com/mvgalabs/staking-rewards-service/internal/queue"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

var reconciliationStatuses = []string{
	types.ReconciliationOK.String(),
	types.ReconciliationWarning.String(),
	types.ReconciliationCritical.String(),
}

// RunReconciliation compares the vault's on-chain balance with the sum of
// ACTIVE principals and records the result. It is skipped when any instance
// reconciled less than one reconciliation interval ago.
func (s *Service) RunReconciliation(ctx context.Context) error {
	return s.runWithJobLock(ctx, reconciliationJob, s.cfg.Poller.ReconciliationLockTTL, func(ctx context.Context) error {
		latest, err := s.db.GetLatestVaultReconciliation(ctx)
		if err != nil && !db.IsNotFoundError(err) {
			return fmt.Errorf("failed to get latest reconciliation: %w", err)
		}
		if latest != nil && !cadenceDue(latest.CheckedAt, s.clock.Now(), s.cfg.Poller.ReconciliationInterval) {
			log.Ctx(ctx).Debug().Time("last_checked", latest.CheckedAt).Msg("vault reconciled recently, skipping run")
			return nil
		}
		_, err = s.reconcileVault(ctx)
		return err
	})
}

// TriggerReconciliation reconciles the vault now, regardless of when it
// last ran.
func (s *Service) TriggerReconciliation(ctx context.Context) error {
	return s.runWithJobLock(ctx, reconciliationJob, s.cfg.Poller.ReconciliationLockTTL, func(ctx context.Context) error {
		_, err := s.reconcileVault(ctx)
		return err
	})
}

func (s *Service) reconcileVault(ctx context.Context) (*model.VaultReconciliation, error) {
	// confirmed payouts parked as pending must reach the ledger first
	s.resolveAllPendingSettlements(ctx)

	onchain, err := s.vault.GetBalance(ctx, s.vault.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to read vault balance: %w", err)
	}
	stats, err := s.db.GetActiveStakeStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active stake stats: %w", err)
	}
	ledger := stats.TotalStaked

	discrepancy := onchain.Sub(ledger)
	percent := discrepancyPercent(discrepancy, ledger)
	status := s.reconciliationStatus(percent)

	rec := &model.VaultReconciliation{
		ID:                 uuid.NewString(),
		VaultAddress:       s.vault.Address(),
		OnchainBalance:     onchain,
		LedgerBalance:      ledger,
		Discrepancy:        discrepancy,
		DiscrepancyPercent: percent.String(),
		Status:             status,
		CheckedAt:          s.clock.Now(),
	}
	if err := s.db.SaveVaultReconciliation(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save vault reconciliation: %w", err)
	}

	percentFloat, _ := percent.Float64()
	metrics.RecordVaultReconciliation(status.String(), percentFloat, reconciliationStatuses)

	if status == types.ReconciliationOK {
		log.Ctx(ctx).Info().
			Stringer("onchain", onchain).
			Stringer("ledger", ledger).
			Str("percent", percent.String()).
			Msg("vault reconciled")
		return rec, nil
	}

	log.Ctx(ctx).Warn().
		Stringer("status", status).
		Stringer("onchain", onchain).
		Stringer("ledger", ledger).
		Stringer("discrepancy", discrepancy).
		Str("percent", percent.String()).
		Msg("vault balance does not match ledger")

	event := queue.NewStakingEvent(types.EventVaultDiscrepancy, "", rec.CheckedAt)
	event.Amount = discrepancy.String()
	event.Details = map[string]string{
		"status":  status.String(),
		"percent": percent.String(),
	}
	s.publish(ctx, event)

	return rec, nil
}

// discrepancyPercent is discrepancy/ledger in percent, zero on an empty
// ledger.
func discrepancyPercent(discrepancy, ledger sdkmath.Int) sdkmath.LegacyDec {
	if !ledger.IsPositive() {
		return sdkmath.LegacyZeroDec()
	}
	return sdkmath.LegacyNewDecFromInt(discrepancy).MulInt64(100).QuoInt(ledger)
}

// reconciliationStatus applies the thresholds inclusively to |percent|:
// up to the warning threshold (1% by default) is OK, up to the critical
// threshold (5%) is WARNING and anything above is CRITICAL. A 5.26%
// discrepancy is therefore CRITICAL.
func (s *Service) reconciliationStatus(percent sdkmath.LegacyDec) types.ReconciliationStatus {
	abs := percent.Abs()
	switch {
	case abs.LTE(s.warningPercent):
		return types.ReconciliationOK
	case abs.LTE(s.criticalPercent):
		return types.ReconciliationWarning
	default:
		return types.ReconciliationCritical
	}
}
