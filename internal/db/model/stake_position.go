package model

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

const StakePositionsCollection = "stake_positions"

// StakePosition is one stake deposit. Every update is filtered on the
// ACTIVE status so an UNSTAKED position is never written again.
type StakePosition struct {
	ID             string               `bson:"_id"`
	UserID         string               `bson:"user_id"`
	WalletAddress  string               `bson:"wallet_address"`
	Amount         sdkmath.Int          `bson:"amount"`
	OriginalAmount sdkmath.Int          `bson:"original_amount"`
	LockPeriodDays uint32               `bson:"lock_period_days"`
	LockedUntil    *time.Time           `bson:"locked_until,omitempty"`
	CreatedAt      time.Time            `bson:"created_at"`
	LastClaimedAt  *time.Time           `bson:"last_claimed_at,omitempty"`
	Status         types.PositionStatus `bson:"status"`
	AutoCompound   bool                 `bson:"auto_compound"`
	StakeTx        string               `bson:"stake_tx,omitempty"`
	UnstakeTx      string               `bson:"unstake_tx,omitempty"`
	UnstakedAt     *time.Time           `bson:"unstaked_at,omitempty"`
	// CompoundedTotal is the part of Amount that came from auto-compound
	CompoundedTotal sdkmath.Int `bson:"compounded_total"`
	LockVersion     int64       `bson:"lock_version"`
}

// IsLocked reports whether the lock period is still running at now.
func (p *StakePosition) IsLocked(now time.Time) bool {
	return p.LockedUntil != nil && p.LockedUntil.After(now)
}

func NewStakePosition(
	id, userID, wallet string, amount sdkmath.Int, lockDays uint32, stakeTx string, autoCompound bool, now time.Time,
) *StakePosition {
	var lockedUntil *time.Time
	if lockDays > 0 {
		until := now.Add(time.Duration(lockDays) * 24 * time.Hour)
		lockedUntil = &until
	}

	return &StakePosition{
		ID:              id,
		UserID:          userID,
		WalletAddress:   wallet,
		Amount:          amount,
		OriginalAmount:  amount,
		LockPeriodDays:  lockDays,
		LockedUntil:     lockedUntil,
		CreatedAt:       now,
		Status:          types.PositionActive,
		AutoCompound:    autoCompound,
		StakeTx:         stakeTx,
		CompoundedTotal: sdkmath.ZeroInt(),
	}
}
