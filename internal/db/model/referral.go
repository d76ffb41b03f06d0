package model

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

const (
	ReferralsCollection       = "referrals"
	ReferralBonusesCollection = "referral_bonuses"
)

// Referral links a referred user (the id) to the referrer of record.
type Referral struct {
	RefereeUserID  string    `bson:"_id"`
	ReferrerUserID string    `bson:"referrer_user_id"`
	ReferrerWallet string    `bson:"referrer_wallet"`
	CreatedAt      time.Time `bson:"created_at"`
}

// ReferralBonus is unique per claim reference.
type ReferralBonus struct {
	ID             string      `bson:"_id"`
	ReferrerUserID string      `bson:"referrer_user_id"`
	RefereeUserID  string      `bson:"referee_user_id"`
	ClaimReference string      `bson:"claim_reference"`
	Amount         sdkmath.Int `bson:"amount"`
	TxReference    string      `bson:"tx_reference"`
	CreatedAt      time.Time   `bson:"created_at"`
}
