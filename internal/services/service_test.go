package services

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mvgalabs/staking-rewards-service/internal/clients/solclient"
	"github.com/mvgalabs/staking-rewards-service/internal/config"
	"github.com/mvgalabs/staking-rewards-service/internal/db/memdb"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/queue"
	"github.com/mvgalabs/staking-rewards-service/tests/mocks"
	"github.com/mvgalabs/staking-rewards-service/testutil"
)

var (
	testStart     = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	vaultAddress  = solana.NewWallet().PublicKey().String()
	treasuryOwner = solana.NewWallet().PublicKey().String()
)

type testEnv struct {
	cfg       *config.Config
	svc       *Service
	store     *memdb.Store
	vault     *mocks.SettlementInterface
	treasury  *mocks.SettlementInterface
	clock     *clockwork.FakeClock
	publisher queue.EventPublisher
}

type envOptions struct {
	vaultCanSign bool
	noTreasury   bool
	publisher    queue.EventPublisher
}

type envOption func(*envOptions)

func withoutVaultSigner() envOption {
	return func(o *envOptions) { o.vaultCanSign = false }
}

func withoutTreasury() envOption {
	return func(o *envOptions) { o.noTreasury = true }
}

func withPublisher(p queue.EventPublisher) envOption {
	return func(o *envOptions) { o.publisher = p }
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Vault: config.VaultConfig{
			Address:                  vaultAddress,
			WarningThresholdPercent:  "1",
			CriticalThresholdPercent: "5",
		},
		Treasury: config.TreasuryConfig{
			LiquidityWallet:    solana.NewWallet().PublicKey().String(),
			StakingVaultWallet: vaultAddress,
			GrantsWallet:       solana.NewWallet().PublicKey().String(),
			BurnPercent:        5,
			LiquidityPercent:   40,
			StakingPercent:     40,
			GrantsPercent:      20,
			FeeSharePercent:    50,
		},
		Poller: config.PollerConfig{
			AutoCompoundInterval:   24 * time.Hour,
			DistributionInterval:   7 * 24 * time.Hour,
			ReconciliationInterval: 24 * time.Hour,
			CompoundPageSize:       2,
		},
	}
	require.NoError(t, cfg.Staking.Validate())
	require.NoError(t, cfg.Poller.Validate())
	return cfg
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	o := &envOptions{vaultCanSign: true}
	for _, opt := range opts {
		opt(o)
	}

	cfg := testConfig(t)
	store := memdb.New(memdb.WithLockTimeouts(2*time.Second, 10*time.Second))
	clock := clockwork.NewFakeClockAt(testStart)

	vault := mocks.NewSettlementInterface(t)
	vault.On("Address").Return(vaultAddress).Maybe()
	vault.On("CanSign").Return(o.vaultCanSign).Maybe()

	env := &testEnv{
		cfg:       cfg,
		store:     store,
		vault:     vault,
		clock:     clock,
		publisher: o.publisher,
	}

	var treasury solclient.SettlementInterface
	if !o.noTreasury {
		env.treasury = mocks.NewSettlementInterface(t)
		env.treasury.On("Address").Return(treasuryOwner).Maybe()
		env.treasury.On("CanSign").Return(true).Maybe()
		treasury = env.treasury
	}

	svc, err := NewService(cfg, store, vault, treasury, o.publisher, clock)
	require.NoError(t, err)
	// side effects must not outlive the test's mocks
	t.Cleanup(svc.WaitSideEffects)
	env.svc = svc

	return env
}

func (e *testEnv) tokens(n int64) sdkmath.Int {
	return e.svc.resolver.Params().Tokens(n)
}

// seedPosition stores an ACTIVE position without going through deposit
// verification.
func (e *testEnv) seedPosition(
	t *testing.T, userID string, amount sdkmath.Int, lockDays uint32, autoCompound bool,
) *model.StakePosition {
	t.Helper()

	p := testutil.GeneratePosition(userID, amount, lockDays, e.clock.Now())
	p.AutoCompound = autoCompound
	require.NoError(t, e.store.SaveNewStakePosition(context.Background(), p))
	return p
}

func (e *testEnv) vaultBalance(amount sdkmath.Int) {
	e.vault.On("GetBalance", mock.Anything, vaultAddress).Return(amount, nil).Maybe()
}

func amountEq(expected sdkmath.Int) interface{} {
	return mock.MatchedBy(func(actual sdkmath.Int) bool {
		return !actual.IsNil() && actual.Equal(expected)
	})
}

// runHook runs the OnSigned hook passed to a mocked transfer at argument
// position idx with the given reference.
func runHook(t *testing.T, ref string, idx int) func(args mock.Arguments) {
	return func(args mock.Arguments) {
		opt, ok := args.Get(idx).(solclient.TxOption)
		if assert.True(t, ok) {
			assert.NoError(t, solclient.RunOnSigned(context.Background(), ref, opt))
		}
	}
}

func (e *testEnv) position(t *testing.T, id string) *model.StakePosition {
	t.Helper()

	p, err := e.store.GetStakePositionByID(context.Background(), id)
	require.NoError(t, err)
	return p
}
