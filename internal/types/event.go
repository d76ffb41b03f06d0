package types

type EventType string

func (e EventType) String() string {
	return string(e)
}

// Events published to the queue after the corresponding ledger change has
// been committed.
const (
	EventStaked                EventType = "STAKED"
	EventUnstaked              EventType = "UNSTAKED"
	EventRewardClaimed         EventType = "REWARD_CLAIMED"
	EventAutoCompounded        EventType = "AUTO_COMPOUNDED"
	EventReferralBonusPaid     EventType = "REFERRAL_BONUS_PAID"
	EventDistributionFinalized EventType = "DISTRIBUTION_FINALIZED"
	EventVaultDiscrepancy      EventType = "VAULT_DISCREPANCY"
)
