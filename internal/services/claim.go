package services

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/observability/metrics"
	"github.com/mvgalabs/staking-rewards-service/internal/queue"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

type ClaimResult struct {
	ClaimID        string
	Amount         sdkmath.Int
	BaseRewards    sdkmath.Int
	FeeShareAmount sdkmath.Int
	TxReference    string
	ClaimedAt      time.Time
}

// ClaimRewards pays the user's accrued rewards from the vault. The claim
// record and the advanced accrual window are committed together with the
// decision to pay, under the user's position lock. A transfer whose outcome
// is unknown is parked as a pending settlement and the user's positions stay
// blocked until it is confirmed or known to have failed.
func (s *Service) ClaimRewards(ctx context.Context, userID string) (*ClaimResult, *types.Error) {
	params := s.resolver.Params()

	var (
		result  ClaimResult
		wallet  string
		sent    *model.PendingSettlement
		outcome transferOutcome
	)
	err := s.withPositionLock(ctx, userID, func(ctx context.Context, tx db.LockedTx) error {
		sent, outcome = nil, transferFailed
		now := s.clock.Now()

		latest, err := tx.LatestRewardClaim(ctx)
		if err != nil && !db.IsNotFoundError(err) {
			return fmt.Errorf("failed to get latest reward claim: %w", err)
		}
		if latest != nil {
			if next := latest.ClaimedAt.Add(params.ClaimCooldown); now.Before(next) {
				return types.NewValidationError(
					"rewards were claimed recently, next claim possible at %s", next.UTC().Format(time.RFC3339),
				)
			}
		}

		positions := tx.Positions()
		accrual, err := s.computeAccrual(ctx, positions, now)
		if err != nil {
			return err
		}
		total := accrual.Total()
		if total.LT(params.MinClaimAmount) {
			return types.NewValidationError(
				"accrued rewards %s are below the minimum claim of %s", total, params.MinClaimAmount,
			)
		}

		if !s.vault.CanSign() {
			return types.NewUnavailableError("reward claims are temporarily unavailable")
		}
		if err := s.checkVaultBalance(ctx, total); err != nil {
			return err
		}

		positionIDs := make([]string, len(positions))
		for i, p := range positions {
			positionIDs[i] = p.ID
		}
		claimID := uuid.NewString()
		wallet = positions[0].WalletAddress

		ref, err := s.vault.Transfer(ctx, wallet, total)
		result.Amount, result.TxReference = total, ref
		outcome = s.transferOutcome(ctx, ref, err)
		if outcome == transferFailed {
			return types.NewSettlementError(fmt.Errorf("reward transfer failed: %w", transferError(ref, err)))
		}
		sent = newPendingClaim(ref, userID, wallet, accrual.BaseRewards, accrual.FeeRewards, claimID, positionIDs, now)
		if outcome == transferPending {
			return tx.SavePendingSettlement(ctx, sent)
		}

		claim := &model.RewardClaim{
			ID:             claimID,
			UserID:         userID,
			Amount:         accrual.BaseRewards,
			FeeShareAmount: accrual.FeeRewards,
			TxReference:    ref,
			Kind:           types.ClaimKindManual,
			PositionIDs:    positionIDs,
			ClaimedAt:      now,
		}
		if err := tx.SaveRewardClaim(ctx, claim); err != nil {
			return fmt.Errorf("failed to save reward claim: %w", err)
		}
		if err := tx.AdvanceLastClaimed(ctx, now); err != nil {
			return fmt.Errorf("failed to advance last claimed: %w", err)
		}

		result = ClaimResult{
			ClaimID:        claim.ID,
			Amount:         total,
			BaseRewards:    accrual.BaseRewards,
			FeeShareAmount: accrual.FeeRewards,
			TxReference:    ref,
			ClaimedAt:      now,
		}
		return nil
	})
	switch {
	case err == nil && outcome == transferPending:
		s.parkPendingSettlement(ctx, sent, false)
		err = &settlementPendingError{reference: sent.Reference}
	case err != nil && sent != nil:
		log.Ctx(ctx).Error().Err(err).
			Str("user_id", userID).
			Str("tx_ref", sent.Reference).
			Msg("reward transfer sent but claim was not recorded")
		s.parkPendingSettlement(ctx, sent, true)
		err = &settlementPendingError{reference: sent.Reference}
	case err != nil && result.TxReference != "":
		s.logFailedTransaction(ctx, txLogEntry{
			reference: result.TxReference,
			userID:    userID,
			wallet:    wallet,
			txType:    types.TxTypeStakingClaim,
			amount:    result.Amount,
		}, err.Error())
	}
	if err != nil {
		metrics.RecordStakeOperation("claim", 0, true)
		return nil, lockedOpError(err, "no active position to claim rewards for")
	}

	log.Ctx(ctx).Info().
		Str("user_id", userID).
		Stringer("amount", result.Amount).
		Stringer("fee_share", result.FeeShareAmount).
		Str("tx_ref", result.TxReference).
		Msg("rewards claimed")
	metrics.RecordStakeOperation("claim", s.tokens(result.Amount), false)

	s.claimSideEffects(ctx, userID, wallet, &result)
	return &result, nil
}

func (s *Service) claimSideEffects(ctx context.Context, userID, wallet string, result *ClaimResult) {
	s.runSideEffect(ctx, func(ctx context.Context) {
		s.logTransaction(ctx, txLogEntry{
			reference: result.TxReference,
			userID:    userID,
			wallet:    wallet,
			txType:    types.TxTypeStakingClaim,
			amount:    result.Amount,
		})

		if err := s.referrals.PayStakingReferralBonus(ctx, userID, result.Amount, result.TxReference); err != nil {
			log.Ctx(ctx).Error().Err(err).
				Str("user_id", userID).
				Str("claim_ref", result.TxReference).
				Msg("failed to pay referral bonus")
		}

		event := queue.NewStakingEvent(types.EventRewardClaimed, userID, result.ClaimedAt)
		event.Amount = result.Amount.String()
		event.TxReference = result.TxReference
		event.Details = map[string]string{
			"base":      result.BaseRewards.String(),
			"fee_share": result.FeeShareAmount.String(),
		}
		s.publish(ctx, event)
	})
}
