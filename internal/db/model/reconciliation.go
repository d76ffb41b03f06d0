package model

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

const VaultReconciliationsCollection = "vault_reconciliations"

type VaultReconciliation struct {
	ID             string      `bson:"_id"`
	VaultAddress   string      `bson:"vault_address"`
	OnchainBalance sdkmath.Int `bson:"onchain_balance"`
	LedgerBalance  sdkmath.Int `bson:"ledger_balance"`
	// Discrepancy is on-chain minus ledger and may be negative
	Discrepancy        sdkmath.Int                `bson:"discrepancy"`
	DiscrepancyPercent string                     `bson:"discrepancy_percent"`
	Status             types.ReconciliationStatus `bson:"status"`
	CheckedAt          time.Time                  `bson:"checked_at"`
}
