package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/mvgalabs/staking-rewards-service/internal/clients/solclient"
	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

const pendingSaveTimeout = 10 * time.Second

type transferOutcome int

const (
	transferSettled transferOutcome = iota
	transferFailed
	transferPending
)

// settlementPendingError rejects work on a user's positions while one of
// their payouts is sent but not confirmed either way.
type settlementPendingError struct {
	reference string
}

func (e *settlementPendingError) Error() string {
	return fmt.Sprintf("transfer %s is awaiting confirmation, try again later", e.reference)
}

func isSettlementPending(err error) bool {
	var pending *settlementPendingError
	return errors.As(err, &pending)
}

// transferOutcome classifies the result of a vault Transfer. A signed
// transfer is failed only when the chain says so, anything else is pending
// until Confirm settles it.
func (s *Service) transferOutcome(ctx context.Context, ref string, err error) transferOutcome {
	if err == nil {
		return transferSettled
	}
	if ref == "" ||
		errors.Is(err, solclient.ErrProvisioning) ||
		errors.Is(err, solclient.ErrNoSigner) ||
		errors.Is(err, solclient.ErrTransactionFailed) {
		return transferFailed
	}

	status, confirmErr := s.vault.Confirm(ctx, ref)
	if confirmErr != nil {
		log.Ctx(ctx).Warn().Err(confirmErr).Str("tx_ref", ref).Msg("failed to confirm transfer")
		return transferPending
	}
	switch status {
	case solclient.ConfirmationConfirmed:
		return transferSettled
	case solclient.ConfirmationFailed:
		return transferFailed
	default:
		return transferPending
	}
}

// savePendingFallback records a sent payout whose locked transaction did not
// commit. It runs on a fresh context since the request one may be gone.
func (s *Service) savePendingFallback(ctx context.Context, pending *model.PendingSettlement) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pendingSaveTimeout)
	defer cancel()

	if err := s.db.SavePendingSettlement(saveCtx, pending); err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("user_id", pending.UserID).
			Str("tx_ref", pending.Reference).
			Stringer("type", pending.Type).
			Stringer("amount", pending.Amount).
			Msg("failed to record pending settlement, reconcile by reference")
	}
}

// parkPendingSettlement leaves a sent payout for later resolution. saveMarker
// is set when the locked transaction did not commit the marker itself.
func (s *Service) parkPendingSettlement(ctx context.Context, pending *model.PendingSettlement, saveMarker bool) {
	if saveMarker {
		s.savePendingFallback(ctx, pending)
	}
	log.Ctx(ctx).Warn().
		Str("user_id", pending.UserID).
		Str("tx_ref", pending.Reference).
		Stringer("type", pending.Type).
		Stringer("amount", pending.Amount).
		Msg("transfer outcome unknown, awaiting confirmation")
	s.runSideEffect(ctx, func(ctx context.Context) {
		s.writeTransactionLog(ctx, pendingLogEntry(pending), types.TxLogPending, "")
	})
}

// transferError is the reason a transfer counts as failed.
func transferError(ref string, err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", solclient.ErrTransactionFailed, ref)
}

// withPositionLock runs fn under the user's position lock once no payout of
// the user is left unresolved.
func (s *Service) withPositionLock(ctx context.Context, userID string, fn db.LockedFunc) error {
	hasPending, err := s.db.HasPendingSettlement(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check pending settlements: %w", err)
	}
	if hasPending {
		if err := s.resolvePendingSettlements(ctx, userID); err != nil {
			return err
		}
	}

	return s.db.WithPositionLock(ctx, userID, func(ctx context.Context, tx db.LockedTx) error {
		open, err := tx.PendingSettlements(ctx)
		if err != nil {
			return fmt.Errorf("failed to get pending settlements: %w", err)
		}
		if len(open) > 0 {
			return &settlementPendingError{reference: open[0].Reference}
		}
		return fn(ctx, tx)
	})
}

// resolvePendingSettlements applies confirmed payouts to the ledger and drops
// failed ones. It returns a settlementPendingError when a payout is still
// undecided.
func (s *Service) resolvePendingSettlements(ctx context.Context, userID string) error {
	var settled, dropped []*model.PendingSettlement
	waiting := ""

	err := s.db.WithPositionLock(ctx, userID, func(ctx context.Context, tx db.LockedTx) error {
		settled, dropped, waiting = nil, nil, ""
		now := s.clock.Now()

		open, err := tx.PendingSettlements(ctx)
		if err != nil {
			return fmt.Errorf("failed to get pending settlements: %w", err)
		}
		for _, p := range open {
			status, err := s.vault.Confirm(ctx, p.Reference)
			if err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("tx_ref", p.Reference).Msg("failed to confirm pending transfer")
				status = solclient.ConfirmationPending
			}
			if status == solclient.ConfirmationNotFound && now.Sub(p.CreatedAt) > solclient.SignatureExpiry {
				status = solclient.ConfirmationFailed
			}

			switch status {
			case solclient.ConfirmationConfirmed:
				if err := applySettlement(ctx, tx, p); err != nil {
					return fmt.Errorf("failed to apply settlement %s: %w", p.Reference, err)
				}
				settled = append(settled, p)
			case solclient.ConfirmationFailed:
				dropped = append(dropped, p)
			default:
				if waiting == "" {
					waiting = p.Reference
				}
				continue
			}
			if err := tx.DeletePendingSettlement(ctx, p.Reference); err != nil {
				return fmt.Errorf("failed to delete pending settlement: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range dropped {
		log.Ctx(ctx).Warn().
			Str("user_id", userID).
			Str("tx_ref", p.Reference).
			Stringer("type", p.Type).
			Msg("pending transfer did not land, dropped")
		s.runSideEffect(ctx, func(ctx context.Context) {
			s.logFailedTransaction(ctx, pendingLogEntry(p), "transfer did not land")
		})
	}
	for _, p := range settled {
		log.Ctx(ctx).Info().
			Str("user_id", userID).
			Str("tx_ref", p.Reference).
			Stringer("type", p.Type).
			Stringer("amount", p.Amount).
			Msg("pending transfer confirmed, ledger updated")
		s.settledSideEffects(ctx, p)
	}

	if waiting != "" {
		return &settlementPendingError{reference: waiting}
	}
	return nil
}

// resolveAllPendingSettlements resolves the pending payouts of every user.
// Payouts still undecided are left for a later pass.
func (s *Service) resolveAllPendingSettlements(ctx context.Context) {
	users, err := s.db.FindPendingSettlementUsers(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to find pending settlements")
		return
	}
	for _, userID := range users {
		if err := s.resolvePendingSettlements(ctx, userID); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("pending settlement not resolved")
		}
	}
}

// applySettlement writes the ledger side of a confirmed payout as of the
// time it was sent.
func applySettlement(ctx context.Context, tx db.LockedTx, p *model.PendingSettlement) error {
	switch p.Type {
	case types.TxTypeStakingClaim:
		claim := &model.RewardClaim{
			ID:             p.ClaimID,
			UserID:         p.UserID,
			Amount:         p.BaseAmount,
			FeeShareAmount: p.FeeShareAmount,
			TxReference:    p.Reference,
			Kind:           types.ClaimKindManual,
			PositionIDs:    p.PositionIDs,
			ClaimedAt:      p.CreatedAt,
		}
		if err := tx.SaveRewardClaim(ctx, claim); err != nil {
			return err
		}
		return tx.AdvanceLastClaimed(ctx, p.CreatedAt)
	case types.TxTypeUnstake:
		if p.FullUnstake {
			return tx.MarkUnstaked(ctx, p.PositionID, p.Reference, p.CreatedAt)
		}
		return tx.ReducePrincipal(ctx, p.PositionID, p.Amount)
	default:
		return fmt.Errorf("unexpected pending settlement type %s", p.Type)
	}
}

func (s *Service) settledSideEffects(ctx context.Context, p *model.PendingSettlement) {
	switch p.Type {
	case types.TxTypeStakingClaim:
		s.claimSideEffects(ctx, p.UserID, p.WalletAddress, &ClaimResult{
			ClaimID:        p.ClaimID,
			Amount:         p.Amount,
			BaseRewards:    p.BaseAmount,
			FeeShareAmount: p.FeeShareAmount,
			TxReference:    p.Reference,
			ClaimedAt:      p.CreatedAt,
		})
	case types.TxTypeUnstake:
		s.unstakeSideEffects(ctx, p.UserID, p.WalletAddress, &UnstakeResult{
			PositionID:   p.PositionID,
			Amount:       p.Amount,
			TxReference:  p.Reference,
			FullyUnstake: p.FullUnstake,
		})
	}
}

func pendingLogEntry(p *model.PendingSettlement) txLogEntry {
	return txLogEntry{
		reference: p.Reference,
		userID:    p.UserID,
		wallet:    p.WalletAddress,
		txType:    p.Type,
		amount:    p.Amount,
	}
}

func newPendingClaim(
	ref, userID, wallet string, accrualBase, accrualFee sdkmath.Int, claimID string,
	positionIDs []string, at time.Time,
) *model.PendingSettlement {
	return &model.PendingSettlement{
		Reference:      ref,
		UserID:         userID,
		Type:           types.TxTypeStakingClaim,
		WalletAddress:  wallet,
		Amount:         accrualBase.Add(accrualFee),
		BaseAmount:     accrualBase,
		FeeShareAmount: accrualFee,
		ClaimID:        claimID,
		PositionIDs:    positionIDs,
		CreatedAt:      at,
	}
}

func newPendingUnstake(ref, userID, wallet, positionID string, amount sdkmath.Int, full bool, at time.Time) *model.PendingSettlement {
	return &model.PendingSettlement{
		Reference:      ref,
		UserID:         userID,
		Type:           types.TxTypeUnstake,
		WalletAddress:  wallet,
		Amount:         amount,
		BaseAmount:     sdkmath.ZeroInt(),
		FeeShareAmount: sdkmath.ZeroInt(),
		PositionID:     positionID,
		FullUnstake:    full,
		CreatedAt:      at,
	}
}
