package model

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

const (
	FeeSnapshotsCollection   = "fee_snapshots"
	FeeCollectionsCollection = "fee_collections"
)

// FeeSnapshot is the fee-share pool of one distribution cycle. There is at
// most one per distribution.
type FeeSnapshot struct {
	ID             string      `bson:"_id"`
	DistributionID string      `bson:"distribution_id"`
	TotalFees      sdkmath.Int `bson:"total_fees"`
	TotalWeight    sdkmath.Int `bson:"total_weight"`
	FeePerWeight   string      `bson:"fee_per_weight"`
	PeriodEnd      time.Time   `bson:"period_end"`
	CreatedAt      time.Time   `bson:"created_at"`
}

// FeeCollection is a raw protocol fee event waiting for the next
// distribution.
type FeeCollection struct {
	ID             string          `bson:"_id"`
	Source         types.FeeSource `bson:"source"`
	Amount         sdkmath.Int     `bson:"amount"`
	Token          string          `bson:"token"`
	TxReference    string          `bson:"tx_reference,omitempty"`
	RelatedTx      string          `bson:"related_tx,omitempty"`
	Collected      bool            `bson:"collected"`
	CollectedAt    *time.Time      `bson:"collected_at,omitempty"`
	DistributionID string          `bson:"distribution_id,omitempty"`
	CreatedAt      time.Time       `bson:"created_at"`
}
