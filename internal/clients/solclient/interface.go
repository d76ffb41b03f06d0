package solclient

import (
	"context"
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
)

var (
	// ErrProvisioning is returned when the destination token account could
	// not be created. Nothing was transferred.
	ErrProvisioning = errors.New("failed to provision destination token account")
	// ErrNoSigner is returned by write calls on a read-only client.
	ErrNoSigner = errors.New("settlement client has no signer configured")
	// ErrTransactionFailed means the transaction is known not to have moved
	// funds: it landed with an error or expired without landing.
	ErrTransactionFailed = errors.New("settlement transaction failed")
	// ErrUnconfirmed means the transaction was sent but its outcome is not
	// known yet. It must be resolved with Confirm, never by sending again.
	ErrUnconfirmed         = errors.New("settlement transaction not confirmed in time")
	ErrDepositNotFound     = errors.New("deposit transaction not found")
	ErrDepositInsufficient = errors.New("deposit does not cover the staked amount")
)

// SignatureExpiry bounds how long after signing a transaction can still
// land. A signature the cluster does not know after this is dead.
const SignatureExpiry = 2 * time.Minute

type ConfirmationStatus int

const (
	ConfirmationPending ConfirmationStatus = iota
	ConfirmationConfirmed
	ConfirmationFailed
	ConfirmationNotFound
)

func (s ConfirmationStatus) String() string {
	switch s {
	case ConfirmationConfirmed:
		return "confirmed"
	case ConfirmationFailed:
		return "failed"
	case ConfirmationNotFound:
		return "not_found"
	default:
		return "pending"
	}
}

//go:generate mockery --name=SettlementInterface --output=../../../tests/mocks --outpkg=mocks --filename=mock_settlement_client.go

// SettlementInterface moves the reward token out of one wallet. All amounts
// are in the token's smallest unit.
type SettlementInterface interface {
	// Address is the owner wallet the client pays from.
	Address() string
	// CanSign reports whether write calls are possible.
	CanSign() bool
	// Transfer pays amount to the destination wallet and waits for
	// confirmation. The returned reference is set whenever a transaction
	// was signed, including on ErrUnconfirmed.
	Transfer(ctx context.Context, destination string, amount sdkmath.Int, opts ...TxOption) (string, error)
	// Burn destroys amount from the client's own token account.
	Burn(ctx context.Context, amount sdkmath.Int, opts ...TxOption) (string, error)
	// GetBalance returns the token balance of the owner wallet, zero if it
	// has no token account.
	GetBalance(ctx context.Context, owner string) (sdkmath.Int, error)
	Confirm(ctx context.Context, reference string) (ConfirmationStatus, error)
	// VerifyDeposit checks that the referenced transaction succeeded and
	// credited at least amount to destinationOwner.
	VerifyDeposit(ctx context.Context, reference, destinationOwner string, amount sdkmath.Int) error
}

type txOptions struct {
	onSigned func(ctx context.Context, reference string) error
}

type TxOption func(*txOptions)

// OnSigned registers a hook that runs after the transaction is signed and
// before it is sent. A hook error aborts the send.
func OnSigned(f func(ctx context.Context, reference string) error) TxOption {
	return func(o *txOptions) {
		o.onSigned = f
	}
}

func buildTxOptions(opts []TxOption) *txOptions {
	o := &txOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunOnSigned runs the OnSigned hook carried by opts, if any. Settlement
// implementations that do not sign locally call it before sending.
func RunOnSigned(ctx context.Context, reference string, opts ...TxOption) error {
	o := buildTxOptions(opts)
	if o.onSigned == nil {
		return nil
	}
	return o.onSigned(ctx, reference)
}
