package solclient

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/observability/metrics"
)

type settlementWithMetrics struct {
	client SettlementInterface
}

func NewSettlementWithMetrics(client SettlementInterface) SettlementInterface {
	return &settlementWithMetrics{client: client}
}

func (s *settlementWithMetrics) Address() string {
	return s.client.Address()
}

func (s *settlementWithMetrics) CanSign() bool {
	return s.client.CanSign()
}

func (s *settlementWithMetrics) Transfer(
	ctx context.Context, destination string, amount sdkmath.Int, opts ...TxOption,
) (string, error) {
	return runSettlementMethodWithMetrics(s.client.Address(), "Transfer", func() (string, error) {
		return s.client.Transfer(ctx, destination, amount, opts...)
	})
}

func (s *settlementWithMetrics) Burn(ctx context.Context, amount sdkmath.Int, opts ...TxOption) (string, error) {
	return runSettlementMethodWithMetrics(s.client.Address(), "Burn", func() (string, error) {
		return s.client.Burn(ctx, amount, opts...)
	})
}

func (s *settlementWithMetrics) GetBalance(ctx context.Context, owner string) (sdkmath.Int, error) {
	return runSettlementMethodWithMetrics(s.client.Address(), "GetBalance", func() (sdkmath.Int, error) {
		return s.client.GetBalance(ctx, owner)
	})
}

func (s *settlementWithMetrics) Confirm(ctx context.Context, reference string) (ConfirmationStatus, error) {
	return runSettlementMethodWithMetrics(s.client.Address(), "Confirm", func() (ConfirmationStatus, error) {
		return s.client.Confirm(ctx, reference)
	})
}

func (s *settlementWithMetrics) VerifyDeposit(
	ctx context.Context, reference, destinationOwner string, amount sdkmath.Int,
) error {
	type zero struct{}
	_, err := runSettlementMethodWithMetrics(s.client.Address(), "VerifyDeposit", func() (zero, error) {
		return zero{}, s.client.VerifyDeposit(ctx, reference, destinationOwner, amount)
	})
	return err
}

func runSettlementMethodWithMetrics[T any](wallet, method string, f func() (T, error)) (T, error) {
	startTime := time.Now()
	result, err := f()
	metrics.RecordSettlementClientLatency(time.Since(startTime), wallet, method, err != nil)

	return result, err
}
