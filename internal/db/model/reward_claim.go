package model

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

const RewardClaimsCollection = "reward_claims"

// RewardClaim is append-only. The latest claim of a user closes the
// accrual window of every position involved.
type RewardClaim struct {
	ID             string          `bson:"_id"`
	UserID         string          `bson:"user_id"`
	Amount         sdkmath.Int     `bson:"amount"`
	FeeShareAmount sdkmath.Int     `bson:"fee_share_amount"`
	TxReference    string          `bson:"tx_reference"`
	Kind           types.ClaimKind `bson:"kind"`
	PositionIDs    []string        `bson:"position_ids"`
	ClaimedAt      time.Time       `bson:"claimed_at"`
}

func (c *RewardClaim) Total() sdkmath.Int {
	return c.Amount.Add(c.FeeShareAmount)
}
