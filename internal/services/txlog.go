package services

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

type txLogEntry struct {
	reference string
	userID    string
	wallet    string
	txType    types.TransactionType
	amount    sdkmath.Int
}

// logTransaction writes the audit row of a settled transaction and marks it
// confirmed. Failures are logged only.
func (s *Service) logTransaction(ctx context.Context, e txLogEntry) {
	s.writeTransactionLog(ctx, e, types.TxLogConfirmed, "")
}

// logFailedTransaction records a transfer known not to have moved funds.
func (s *Service) logFailedTransaction(ctx context.Context, e txLogEntry, reason string) {
	s.writeTransactionLog(ctx, e, types.TxLogFailed, reason)
}

func (s *Service) writeTransactionLog(ctx context.Context, e txLogEntry, status types.TransactionLogStatus, reason string) {
	if e.reference == "" {
		return
	}
	now := s.clock.Now()

	txLog := &model.TransactionLog{
		Reference:     e.reference,
		UserID:        e.userID,
		WalletAddress: e.wallet,
		Type:          e.txType,
		Amount:        e.amount,
		Status:        types.TxLogPending,
		CreatedAt:     now,
	}
	// a pending transfer wrote its row already and only moves status now
	if err := s.db.SaveTransactionLog(ctx, txLog); err != nil && !db.IsDuplicateKeyError(err) {
		log.Ctx(ctx).Error().Err(err).
			Str("tx_ref", e.reference).
			Stringer("type", e.txType).
			Msg("failed to write transaction log")
		return
	}
	if status == types.TxLogPending {
		return
	}

	if err := s.db.UpdateTransactionLogStatus(ctx, e.reference, status, reason, now); err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("tx_ref", e.reference).
			Stringer("status", status).
			Msg("failed to update transaction log")
	}
}
