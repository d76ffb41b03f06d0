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

	"github.com/mvgalabs/staking-rewards-service/internal/clients/solclient"
	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/observability/metrics"
	"github.com/mvgalabs/staking-rewards-service/internal/queue"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
	"github.com/mvgalabs/staking-rewards-service/pkg"
)

type OpenStakeRequest struct {
	UserID         string
	WalletAddress  string
	Amount         sdkmath.Int
	LockPeriodDays uint32
	// StakeTx is the settlement reference of the deposit into the vault
	StakeTx      string
	AutoCompound bool
}

type UnstakeRequest struct {
	UserID string
	// PositionID is optional, the oldest ACTIVE position is used without it
	PositionID string
	Amount     sdkmath.Int
}

type UnstakeResult struct {
	PositionID   string
	Amount       sdkmath.Int
	TxReference  string
	FullyUnstake bool
}

// OpenStake records a new position for a verified deposit.
func (s *Service) OpenStake(ctx context.Context, req OpenStakeRequest) (*model.StakePosition, *types.Error) {
	if req.UserID == "" {
		return nil, types.NewValidationError("user id is required")
	}
	if req.Amount.IsNil() || !req.Amount.IsPositive() {
		return nil, types.NewValidationError("stake amount must be positive")
	}
	if !s.resolver.IsValidLockPeriod(req.LockPeriodDays) {
		return nil, types.NewValidationError(
			"invalid lock period %d, allowed periods: %v", req.LockPeriodDays, s.resolver.LockPeriods(),
		)
	}
	if err := pkg.ValidateWalletAddress(req.WalletAddress); err != nil {
		return nil, types.NewValidationError("invalid wallet address: %v", err)
	}
	if req.StakeTx == "" {
		return nil, types.NewValidationError("stake transaction reference is required")
	}

	used, err := s.db.IsStakeTxUsed(ctx, req.StakeTx)
	if err != nil {
		return nil, types.NewInternalServiceError(fmt.Errorf("failed to check stake tx: %w", err))
	}
	if used {
		return nil, types.NewValidationError("stake transaction %s was already used", req.StakeTx)
	}

	if err := s.vault.VerifyDeposit(ctx, req.StakeTx, s.vault.Address(), req.Amount); err != nil {
		if errors.Is(err, solclient.ErrDepositNotFound) ||
			errors.Is(err, solclient.ErrDepositInsufficient) ||
			errors.Is(err, solclient.ErrTransactionFailed) {
			return nil, types.NewValidationError("deposit verification failed: %v", err)
		}
		return nil, types.NewSettlementError(fmt.Errorf("failed to verify deposit: %w", err))
	}

	now := s.clock.Now()
	position := model.NewStakePosition(
		uuid.NewString(), req.UserID, req.WalletAddress, req.Amount,
		req.LockPeriodDays, req.StakeTx, req.AutoCompound, now,
	)
	if err := s.db.SaveNewStakePosition(ctx, position); err != nil {
		metrics.RecordStakeOperation("stake", 0, true)
		if db.IsDuplicateKeyError(err) {
			return nil, types.NewValidationError("stake transaction %s was already used", req.StakeTx)
		}
		return nil, types.NewInternalServiceError(fmt.Errorf("failed to save stake position: %w", err))
	}

	log.Ctx(ctx).Info().
		Str("user_id", req.UserID).
		Str("position_id", position.ID).
		Stringer("amount", req.Amount).
		Uint32("lock_days", req.LockPeriodDays).
		Msg("stake position opened")
	metrics.RecordStakeOperation("stake", s.tokens(req.Amount), false)

	s.runSideEffect(ctx, func(ctx context.Context) {
		s.logTransaction(ctx, txLogEntry{
			reference: req.StakeTx,
			userID:    req.UserID,
			wallet:    req.WalletAddress,
			txType:    types.TxTypeStake,
			amount:    req.Amount,
		})
		event := queue.NewStakingEvent(types.EventStaked, req.UserID, now)
		event.PositionID = position.ID
		event.Amount = req.Amount.String()
		event.TxReference = req.StakeTx
		s.publish(ctx, event)
	})

	return position, nil
}

// Unstake pays back principal from one position. The position is unstaked
// completely when the requested amount covers its principal. A transfer
// whose outcome is unknown blocks the user's positions until it resolves.
func (s *Service) Unstake(ctx context.Context, req UnstakeRequest) (*UnstakeResult, *types.Error) {
	if req.Amount.IsNil() || !req.Amount.IsPositive() {
		return nil, types.NewValidationError("unstake amount must be positive")
	}

	var (
		result   UnstakeResult
		position *model.StakePosition
		sent     *model.PendingSettlement
		outcome  transferOutcome
	)
	err := s.withPositionLock(ctx, req.UserID, func(ctx context.Context, tx db.LockedTx) error {
		sent, outcome = nil, transferFailed
		position = selectPosition(tx.Positions(), req.PositionID)
		if position == nil {
			return types.NewErrorWithMsg(
				http.StatusNotFound, types.NotFound,
				fmt.Sprintf("active position %s not found", req.PositionID),
			)
		}

		now := s.clock.Now()
		if position.IsLocked(now) {
			return types.NewValidationError(
				"position %s is locked until %s", position.ID, position.LockedUntil.UTC().Format(time.RFC3339),
			)
		}

		amount := sdkmath.MinInt(req.Amount, position.Amount)
		full := amount.Equal(position.Amount)

		if !s.vault.CanSign() {
			return types.NewUnavailableError("unstaking is temporarily unavailable")
		}
		if err := s.checkVaultBalance(ctx, amount); err != nil {
			return err
		}

		ref, err := s.vault.Transfer(ctx, position.WalletAddress, amount)
		result = UnstakeResult{
			PositionID:   position.ID,
			Amount:       amount,
			TxReference:  ref,
			FullyUnstake: full,
		}
		outcome = s.transferOutcome(ctx, ref, err)
		if outcome == transferFailed {
			return types.NewSettlementError(fmt.Errorf("unstake transfer failed: %w", transferError(ref, err)))
		}
		sent = newPendingUnstake(ref, req.UserID, position.WalletAddress, position.ID, amount, full, now)
		if outcome == transferPending {
			return tx.SavePendingSettlement(ctx, sent)
		}

		if full {
			return tx.MarkUnstaked(ctx, position.ID, ref, now)
		}
		return tx.ReducePrincipal(ctx, position.ID, amount)
	})
	switch {
	case err == nil && outcome == transferPending:
		s.parkPendingSettlement(ctx, sent, false)
		err = &settlementPendingError{reference: sent.Reference}
	case err != nil && sent != nil:
		log.Ctx(ctx).Error().Err(err).
			Str("user_id", req.UserID).
			Str("position_id", result.PositionID).
			Str("tx_ref", sent.Reference).
			Msg("unstake transfer sent but ledger update not committed")
		s.parkPendingSettlement(ctx, sent, true)
		err = &settlementPendingError{reference: sent.Reference}
	case err != nil && result.TxReference != "":
		s.logFailedTransaction(ctx, txLogEntry{
			reference: result.TxReference,
			userID:    req.UserID,
			wallet:    position.WalletAddress,
			txType:    types.TxTypeUnstake,
			amount:    result.Amount,
		}, err.Error())
	}
	if err != nil {
		metrics.RecordStakeOperation("unstake", 0, true)
		return nil, lockedOpError(err, "no active position to unstake")
	}

	log.Ctx(ctx).Info().
		Str("user_id", req.UserID).
		Str("position_id", result.PositionID).
		Stringer("amount", result.Amount).
		Bool("full", result.FullyUnstake).
		Str("tx_ref", result.TxReference).
		Msg("position unstaked")
	metrics.RecordStakeOperation("unstake", s.tokens(result.Amount), false)

	s.unstakeSideEffects(ctx, req.UserID, position.WalletAddress, &result)
	return &result, nil
}

func (s *Service) unstakeSideEffects(ctx context.Context, userID, wallet string, result *UnstakeResult) {
	s.runSideEffect(ctx, func(ctx context.Context) {
		s.logTransaction(ctx, txLogEntry{
			reference: result.TxReference,
			userID:    userID,
			wallet:    wallet,
			txType:    types.TxTypeUnstake,
			amount:    result.Amount,
		})
		event := queue.NewStakingEvent(types.EventUnstaked, userID, s.clock.Now())
		event.PositionID = result.PositionID
		event.Amount = result.Amount.String()
		event.TxReference = result.TxReference
		event.Details = map[string]string{"full": fmt.Sprint(result.FullyUnstake)}
		s.publish(ctx, event)
	})
}

func selectPosition(positions []*model.StakePosition, positionID string) *model.StakePosition {
	if positionID == "" {
		if len(positions) == 0 {
			return nil
		}
		return positions[0]
	}
	for _, p := range positions {
		if p.ID == positionID {
			return p
		}
	}
	return nil
}

// checkVaultBalance fails when the vault cannot cover amount. The vault is
// shared by every payout path and nothing can be reserved ahead of a send.
func (s *Service) checkVaultBalance(ctx context.Context, amount sdkmath.Int) *types.Error {
	balance, err := s.vault.GetBalance(ctx, s.vault.Address())
	if err != nil {
		return types.NewSettlementError(fmt.Errorf("failed to read vault balance: %w", err))
	}
	if balance.LT(amount) {
		log.Ctx(ctx).Warn().
			Stringer("balance", balance).
			Stringer("required", amount).
			Msg("vault balance below requested payout")
		return types.NewSettlementError(errors.New("reward pool temporarily depleted"))
	}
	return nil
}

// SetAutoCompound toggles auto-compound on one of the user's ACTIVE
// positions.
func (s *Service) SetAutoCompound(ctx context.Context, userID, positionID string, enabled bool) *types.Error {
	if err := s.db.SetAutoCompound(ctx, userID, positionID, enabled); err != nil {
		if db.IsNotFoundError(err) {
			return types.NewErrorWithMsg(
				http.StatusNotFound, types.NotFound,
				fmt.Sprintf("active position %s not found", positionID),
			)
		}
		return types.NewInternalServiceError(fmt.Errorf("failed to set auto-compound: %w", err))
	}

	log.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("position_id", positionID).
		Bool("enabled", enabled).
		Msg("auto-compound updated")
	return nil
}

type PositionView struct {
	*model.StakePosition
	// EffectiveAPY is in percent
	EffectiveAPY sdkmath.LegacyDec
	Accrued      sdkmath.Int
}

type PositionSummary struct {
	UserID         string
	Positions      []PositionView
	TotalStaked    sdkmath.Int
	Tier           string
	TierMultiplier sdkmath.LegacyDec
	// NextTier is empty at the top tier
	NextTier         string
	AmountToNextTier sdkmath.Int
	DynamicAPY       sdkmath.LegacyDec
	Weight           sdkmath.Int
	BaseRewards      sdkmath.Int
	FeeRewards       sdkmath.Int
	TotalRewards     sdkmath.Int
}

// GetPosition returns the user's ACTIVE positions with their live accrual.
func (s *Service) GetPosition(ctx context.Context, userID string) (*PositionSummary, *types.Error) {
	positions, err := s.db.GetActivePositionsByUser(ctx, userID)
	if err != nil {
		return nil, types.NewInternalServiceError(fmt.Errorf("failed to get positions: %w", err))
	}

	now := s.clock.Now()
	accrual, err := s.computeAccrual(ctx, positions, now)
	if err != nil {
		return nil, types.NewInternalServiceError(err)
	}

	summary := &PositionSummary{
		UserID:           userID,
		Positions:        make([]PositionView, len(positions)),
		TotalStaked:      accrual.TotalStaked,
		Tier:             accrual.Tier.Name,
		TierMultiplier:   accrual.Tier.Multiplier,
		AmountToNextTier: s.resolver.AmountToNextTier(accrual.TotalStaked),
		DynamicAPY:       s.resolver.Params().BaseAPY.Mul(accrual.DynamicMultiplier),
		Weight:           accrual.Weight,
		BaseRewards:      accrual.BaseRewards,
		FeeRewards:       accrual.FeeRewards,
		TotalRewards:     accrual.Total(),
	}
	if next, ok := s.resolver.NextTier(accrual.Tier); ok {
		summary.NextTier = next.Name
	}

	for i, p := range positions {
		accrued, ok := accrual.PerPosition[p.ID]
		if !ok {
			accrued = sdkmath.ZeroInt()
		}
		summary.Positions[i] = PositionView{
			StakePosition: p,
			EffectiveAPY:  s.resolver.EffectiveAPY(accrual.DynamicMultiplier, accrual.Tier, p.LockPeriodDays),
			Accrued:       accrued,
		}
	}

	return summary, nil
}
