package model

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

const PendingSettlementsCollection = "pending_settlements"

// PendingSettlement is a vault payout that was signed and sent but whose
// ledger side is not committed yet, because its outcome was unknown or the
// locked transaction could not commit. It carries what is needed to apply
// the ledger change once the transfer is confirmed. While one exists for a
// user no other payout runs on the user's positions.
type PendingSettlement struct {
	Reference     string                `bson:"_id"`
	UserID        string                `bson:"user_id"`
	Type          types.TransactionType `bson:"type"`
	WalletAddress string                `bson:"wallet_address"`
	Amount        sdkmath.Int           `bson:"amount"`
	// Claims only
	BaseAmount     sdkmath.Int `bson:"base_amount"`
	FeeShareAmount sdkmath.Int `bson:"fee_share_amount"`
	ClaimID        string      `bson:"claim_id,omitempty"`
	PositionIDs    []string    `bson:"position_ids,omitempty"`
	// Unstakes only
	PositionID  string    `bson:"position_id,omitempty"`
	FullUnstake bool      `bson:"full_unstake"`
	CreatedAt   time.Time `bson:"created_at"`
}
