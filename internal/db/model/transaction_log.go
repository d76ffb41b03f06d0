package model

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

const TransactionLogsCollection = "transaction_logs"

// TransactionLog is the audit row of one settlement. The id is the
// settlement reference.
type TransactionLog struct {
	Reference     string                     `bson:"_id"`
	UserID        string                     `bson:"user_id,omitempty"`
	WalletAddress string                     `bson:"wallet_address"`
	Type          types.TransactionType      `bson:"type"`
	Amount        sdkmath.Int                `bson:"amount"`
	Status        types.TransactionLogStatus `bson:"status"`
	Error         string                     `bson:"error,omitempty"`
	CreatedAt     time.Time                  `bson:"created_at"`
	ConfirmedAt   *time.Time                 `bson:"confirmed_at,omitempty"`
}
