package services

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mvgalabs/staking-rewards-service/internal/clients/solclient"
	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/queue"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

// ReferralPayout pays the referrer of record of a user a bonus on a claim.
// It runs after the claim committed and its failures never affect the
// claim.
type ReferralPayout interface {
	PayStakingReferralBonus(ctx context.Context, refereeUserID string, claimed sdkmath.Int, claimReference string) error
}

// treasuryReferralPayout pays bonuses from the treasury wallet.
type treasuryReferralPayout struct {
	s *Service
}

func (r *treasuryReferralPayout) PayStakingReferralBonus(
	ctx context.Context, refereeUserID string, claimed sdkmath.Int, claimReference string,
) error {
	s := r.s
	if s.treasury == nil || !s.treasury.CanSign() {
		return nil
	}

	referral, err := s.db.GetReferral(ctx, refereeUserID)
	if err != nil {
		if db.IsNotFoundError(err) {
			return nil
		}
		return fmt.Errorf("failed to get referral: %w", err)
	}

	bonus, ok := s.resolver.ReferralBonus(claimed)
	if !ok {
		log.Ctx(ctx).Debug().
			Str("user_id", refereeUserID).
			Stringer("bonus", bonus).
			Msg("referral bonus below payout floor, skipping")
		return nil
	}

	record := &model.ReferralBonus{
		ID:             uuid.NewString(),
		ReferrerUserID: referral.ReferrerUserID,
		RefereeUserID:  refereeUserID,
		ClaimReference: claimReference,
		Amount:         bonus,
		CreatedAt:      s.clock.Now(),
	}
	// the bonus row is unique per claim and written before the send, so a
	// replayed claim side effect cannot pay twice
	saveBonus := solclient.OnSigned(func(ctx context.Context, ref string) error {
		record.TxReference = ref
		return s.db.SaveReferralBonus(ctx, record)
	})

	ref, err := s.treasury.Transfer(ctx, referral.ReferrerWallet, bonus, saveBonus)
	if err != nil {
		if db.IsDuplicateKeyError(err) {
			log.Ctx(ctx).Info().Str("claim_ref", claimReference).Msg("referral bonus already paid")
			return nil
		}
		return fmt.Errorf("referral bonus transfer failed: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("referrer_id", referral.ReferrerUserID).
		Str("user_id", refereeUserID).
		Stringer("amount", bonus).
		Str("tx_ref", ref).
		Msg("referral bonus paid")

	s.logTransaction(ctx, txLogEntry{
		reference: ref,
		userID:    referral.ReferrerUserID,
		wallet:    referral.ReferrerWallet,
		txType:    types.TxTypeReferralBonus,
		amount:    bonus,
	})
	event := queue.NewStakingEvent(types.EventReferralBonusPaid, referral.ReferrerUserID, s.clock.Now())
	event.Amount = bonus.String()
	event.TxReference = ref
	event.Details = map[string]string{
		"referee_user_id": refereeUserID,
		"claim_reference": claimReference,
	}
	s.publish(ctx, event)

	return nil
}
