package services

import (
	"context"
	"errors"
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
	"github.com/mvgalabs/staking-rewards-service/internal/utils"
)

// skipCompound aborts a user's compound transaction without it being a
// failure.
type skipCompound struct {
	reason string
}

func (e *skipCompound) Error() string {
	return e.reason
}

type CompoundRunResult struct {
	Compounded      int
	Skipped         int
	Failed          int
	TotalCompounded sdkmath.Int
}

// RunAutoCompound re-stakes the accrued rewards of every user with an
// opted-in position. Only one instance runs it at a time, at most once per
// auto-compound interval.
func (s *Service) RunAutoCompound(ctx context.Context) error {
	return s.runScheduledJob(
		ctx, autoCompoundJob, s.cfg.Poller.AutoCompoundLockTTL, s.cfg.Poller.AutoCompoundInterval,
		func(ctx context.Context) error {
			_, err := s.autoCompound(ctx)
			return err
		},
	)
}

func (s *Service) autoCompound(ctx context.Context) (*CompoundRunResult, error) {
	pageSize := int64(s.cfg.Poller.CompoundPageSize)
	result := &CompoundRunResult{TotalCompounded: sdkmath.ZeroInt()}
	// Pages are ordered by position id, so a user with several opted-in
	// positions can show up again on a later page. Only the previous page
	// is remembered: a user met again further on has a fresh accrual window
	// and is skipped by the compound minimum.
	var previous map[string]struct{}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := s.db.FindAutoCompoundPositions(ctx, cursor, pageSize)
		if err != nil {
			return result, fmt.Errorf("failed to find auto-compound positions: %w", err)
		}

		current := make(map[string]struct{}, len(page))
		for _, userID := range usersInOrder(page) {
			current[userID] = struct{}{}
			if _, ok := previous[userID]; ok {
				continue
			}

			amount, err := s.compoundUser(ctx, userID, result.TotalCompounded)
			var skip *skipCompound
			switch {
			case err == nil:
				result.Compounded++
				result.TotalCompounded = result.TotalCompounded.Add(amount)
			case errors.As(err, &skip), db.IsNothingLockedError(err), isSettlementPending(err):
				result.Skipped++
				log.Ctx(ctx).Debug().Err(err).Str("user_id", userID).Msg("auto-compound skipped")
			default:
				result.Failed++
				metrics.RecordStakeOperation("compound", 0, true)
				log.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("auto-compound failed for user")
			}
		}

		if int64(len(page)) < pageSize {
			break
		}
		previous = current
		cursor = page[len(page)-1].ID
	}

	log.Ctx(ctx).Info().
		Int("compounded", result.Compounded).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Stringer("total", result.TotalCompounded).
		Msg("auto-compound run finished")

	return result, nil
}

func usersInOrder(positions []*model.StakePosition) []string {
	seen := make(map[string]struct{}, len(positions))
	users := make([]string, 0, len(positions))
	for _, p := range positions {
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		users = append(users, p.UserID)
	}
	return users
}

// compoundUser adds the user's accrued rewards to their oldest opted-in
// position. committed is what this run already compounded and is not
// available in the vault anymore.
func (s *Service) compoundUser(ctx context.Context, userID string, committed sdkmath.Int) (sdkmath.Int, error) {
	params := s.resolver.Params()

	var (
		amount sdkmath.Int
		target string
		ref    string
		now    time.Time
	)
	err := s.withPositionLock(ctx, userID, func(ctx context.Context, tx db.LockedTx) error {
		now = s.clock.Now()
		positions := tx.Positions()

		var into *model.StakePosition
		for _, p := range positions {
			if p.AutoCompound {
				into = p
				break
			}
		}
		if into == nil {
			return &skipCompound{reason: "no opted-in position left"}
		}

		accrual, err := s.computeAccrual(ctx, positions, now)
		if err != nil {
			return err
		}
		amount = accrual.Total()
		if amount.LT(params.MinCompoundAmount) {
			return &skipCompound{reason: fmt.Sprintf("accrued %s below compound minimum", amount)}
		}

		balance, err := s.vault.GetBalance(ctx, s.vault.Address())
		if err != nil {
			return fmt.Errorf("failed to read vault balance: %w", err)
		}
		if available := balance.Sub(committed); available.LT(amount) {
			log.Ctx(ctx).Warn().
				Str("user_id", userID).
				Stringer("available", available).
				Stringer("required", amount).
				Msg("vault balance insufficient for auto-compound")
			return &skipCompound{reason: "vault balance insufficient"}
		}

		if err := tx.IncrementPrincipal(ctx, into.ID, amount); err != nil {
			return fmt.Errorf("failed to increment principal: %w", err)
		}
		if err := tx.AdvanceLastClaimed(ctx, now); err != nil {
			return fmt.Errorf("failed to advance last claimed: %w", err)
		}

		positionIDs := make([]string, len(positions))
		for i, p := range positions {
			positionIDs[i] = p.ID
		}
		target = into.ID
		ref = compoundReference(userID, now)
		claim := &model.RewardClaim{
			ID:             uuid.NewString(),
			UserID:         userID,
			Amount:         accrual.BaseRewards,
			FeeShareAmount: accrual.FeeRewards,
			TxReference:    ref,
			Kind:           types.ClaimKindAutoCompound,
			PositionIDs:    positionIDs,
			ClaimedAt:      now,
		}
		if err := tx.SaveRewardClaim(ctx, claim); err != nil {
			return fmt.Errorf("failed to save compound claim: %w", err)
		}
		return nil
	})
	if err != nil {
		return sdkmath.Int{}, err
	}

	log.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("position_id", target).
		Stringer("amount", amount).
		Msg("rewards auto-compounded")
	metrics.RecordStakeOperation("compound", s.tokens(amount), false)

	s.runSideEffect(ctx, func(ctx context.Context) {
		s.logTransaction(ctx, txLogEntry{
			reference: ref,
			userID:    userID,
			txType:    types.TxTypeAutoCompound,
			amount:    amount,
		})
		event := queue.NewStakingEvent(types.EventAutoCompounded, userID, now)
		event.PositionID = target
		event.Amount = amount.String()
		event.TxReference = ref
		s.publish(ctx, event)
	})

	return amount, nil
}

// compoundReference identifies a compound claim. No transfer backs it, the
// uuid suffix keeps it unique when two compounds share a timestamp.
func compoundReference(userID string, at time.Time) string {
	return fmt.Sprintf("autocompound-%d-%s-%s", at.UnixNano(), utils.ShortPrefix(userID, 8), uuid.NewString())
}
