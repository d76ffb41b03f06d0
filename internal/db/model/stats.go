package model

import sdkmath "cosmossdk.io/math"

const (
	OverallStatsCollection = "overall_stats"
	OverallStatsID         = "overall_stats"
)

// OverallStatsDocument is the cached pool statistics
type OverallStatsDocument struct {
	ID                string      `bson:"_id"`                // Always "overall_stats"
	TotalStaked       sdkmath.Int `bson:"total_staked"`       // Sum of ACTIVE principals
	StakerCount       uint64      `bson:"staker_count"`       // Users with at least one ACTIVE position
	ActivePositions   uint64      `bson:"active_positions"`   // ACTIVE position count
	TotalWeight       sdkmath.Int `bson:"total_weight"`       // Pool stake weight
	ParticipationRate string      `bson:"participation_rate"` // Total staked over circulating supply
	DynamicAPY        string      `bson:"dynamic_apy"`        // Base APY after participation band, percent
	LastUpdated       int64       `bson:"last_updated"`       // Unix timestamp of last update
}
