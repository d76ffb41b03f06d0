package model

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

const (
	TreasuryDistributionsCollection = "treasury_distributions"
	TreasuryBalancesCollection      = "treasury_balances"
)

type DistributionStep struct {
	Name        types.DistributionStepName `bson:"name"`
	Status      types.StepStatus           `bson:"status"`
	Amount      sdkmath.Int                `bson:"amount"`
	Destination string                     `bson:"destination,omitempty"`
	TxReference string                     `bson:"tx_reference,omitempty"`
	Error       string                     `bson:"error,omitempty"`
	StartedAt   *time.Time                 `bson:"started_at,omitempty"`
	CompletedAt *time.Time                 `bson:"completed_at,omitempty"`
}

// TreasuryDistribution is one weekly cycle. It is written IN_PROGRESS
// before the first transfer and each step is persisted as it advances, so
// an interrupted cycle resumes where it stopped.
type TreasuryDistribution struct {
	ID                string                   `bson:"_id"`
	TotalAmount       sdkmath.Int              `bson:"total_amount"`
	BurnAmount        sdkmath.Int              `bson:"burn_amount"`
	LiquidityAmount   sdkmath.Int              `bson:"liquidity_amount"`
	StakingAmount     sdkmath.Int              `bson:"staking_amount"`
	VaultRefillAmount sdkmath.Int              `bson:"vault_refill_amount"`
	FeeShareAmount    sdkmath.Int              `bson:"fee_share_amount"`
	GrantsAmount      sdkmath.Int              `bson:"grants_amount"`
	SourceBreakdown   map[string]sdkmath.Int   `bson:"source_breakdown"`
	Status            types.DistributionStatus `bson:"status"`
	Steps             []DistributionStep       `bson:"steps"`
	FeeCollectionIDs  []string                 `bson:"fee_collection_ids"`
	FeeSnapshotID     string                   `bson:"fee_snapshot_id,omitempty"`
	PeriodStart       time.Time                `bson:"period_start"`
	PeriodEnd         time.Time                `bson:"period_end"`
	CreatedAt         time.Time                `bson:"created_at"`
	ExecutedAt        *time.Time               `bson:"executed_at,omitempty"`
}

// Step returns the step with the given name, nil if the cycle has none.
func (d *TreasuryDistribution) Step(name types.DistributionStepName) *DistributionStep {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}

// TreasuryBalance is a point-in-time snapshot of the treasury side wallets
// with the cumulative distribution totals.
type TreasuryBalance struct {
	ID             string      `bson:"_id"`
	DistributionID string      `bson:"distribution_id,omitempty"`
	Treasury       sdkmath.Int `bson:"treasury"`
	Liquidity      sdkmath.Int `bson:"liquidity"`
	StakingVault   sdkmath.Int `bson:"staking_vault"`
	Grants         sdkmath.Int `bson:"grants"`

	TotalRevenue     sdkmath.Int `bson:"total_revenue"`
	TotalBurned      sdkmath.Int `bson:"total_burned"`
	TotalLiquidity   sdkmath.Int `bson:"total_liquidity"`
	TotalVaultRefill sdkmath.Int `bson:"total_vault_refill"`
	TotalFeeShare    sdkmath.Int `bson:"total_fee_share"`
	TotalGrants      sdkmath.Int `bson:"total_grants"`

	SnapshotAt time.Time `bson:"snapshot_at"`
}
