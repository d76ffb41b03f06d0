package types

// Enum values for stake position status
type PositionStatus string

const (
	PositionActive   PositionStatus = "ACTIVE"
	PositionUnstaked PositionStatus = "UNSTAKED"
)

func (s PositionStatus) String() string {
	return string(s)
}

type ClaimKind string

const (
	ClaimKindManual       ClaimKind = "MANUAL"
	ClaimKindAutoCompound ClaimKind = "AUTO_COMPOUND"
)

func (k ClaimKind) String() string {
	return string(k)
}

type DistributionStatus string

const (
	DistributionInProgress DistributionStatus = "IN_PROGRESS"
	DistributionCompleted  DistributionStatus = "COMPLETED"
	DistributionFailed     DistributionStatus = "FAILED"
)

func (s DistributionStatus) String() string {
	return string(s)
}

// DistributionStepName identifies one leg of a weekly treasury distribution.
type DistributionStepName string

const (
	StepBurn          DistributionStepName = "BURN"
	StepLiquidity     DistributionStepName = "LIQUIDITY"
	StepStaking       DistributionStepName = "STAKING"
	StepGrants        DistributionStepName = "GRANTS"
	StepFeeSnapshot   DistributionStepName = "FEE_SNAPSHOT"
	StepMarkCollected DistributionStepName = "MARK_COLLECTED"
)

func (s DistributionStepName) String() string {
	return string(s)
}

// DistributionStepOrder is the order steps are executed in.
var DistributionStepOrder = []DistributionStepName{
	StepBurn,
	StepLiquidity,
	StepStaking,
	StepGrants,
	StepFeeSnapshot,
	StepMarkCollected,
}

// IsCriticalStep reports whether a failure of the step fails the whole cycle.
func (s DistributionStepName) IsCriticalStep() bool {
	switch s {
	case StepLiquidity, StepStaking, StepGrants, StepMarkCollected:
		return true
	default:
		return false
	}
}

type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
	StepSkipped    StepStatus = "SKIPPED"
	StepFailed     StepStatus = "FAILED"
)

func (s StepStatus) String() string {
	return string(s)
}

// IsFinal reports whether a step in this status will not be executed again.
func (s StepStatus) IsFinal() bool {
	return s == StepCompleted || s == StepSkipped || s == StepFailed
}

type ReconciliationStatus string

const (
	ReconciliationOK       ReconciliationStatus = "OK"
	ReconciliationWarning  ReconciliationStatus = "WARNING"
	ReconciliationCritical ReconciliationStatus = "CRITICAL"
)

func (s ReconciliationStatus) String() string {
	return string(s)
}

type FeeSource string

const (
	FeeSourceSwap        FeeSource = "SWAP"
	FeeSourceMobileTopup FeeSource = "MOBILE_TOPUP"
	FeeSourceGiftCard    FeeSource = "GIFT_CARD"
	FeeSourceYield       FeeSource = "YIELD"
	FeeSourceOther       FeeSource = "OTHER"
)

func (s FeeSource) String() string {
	return string(s)
}

func (s FeeSource) IsValid() bool {
	switch s {
	case FeeSourceSwap, FeeSourceMobileTopup, FeeSourceGiftCard, FeeSourceYield, FeeSourceOther:
		return true
	default:
		return false
	}
}

type TransactionType string

const (
	TxTypeStake            TransactionType = "STAKE"
	TxTypeUnstake          TransactionType = "UNSTAKE"
	TxTypeStakingClaim     TransactionType = "STAKING_CLAIM"
	TxTypeAutoCompound     TransactionType = "AUTO_COMPOUND"
	TxTypeReferralBonus    TransactionType = "REFERRAL_BONUS"
	TxTypeBurn             TransactionType = "BURN"
	TxTypeTreasuryTransfer TransactionType = "TREASURY_TRANSFER"
)

func (t TransactionType) String() string {
	return string(t)
}

type TransactionLogStatus string

const (
	TxLogPending   TransactionLogStatus = "PENDING"
	TxLogConfirmed TransactionLogStatus = "CONFIRMED"
	TxLogFailed    TransactionLogStatus = "FAILED"
)

func (s TransactionLogStatus) String() string {
	return string(s)
}
