package cli

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mvgalabs/staking-rewards-service/internal/clients/solclient"
	"github.com/mvgalabs/staking-rewards-service/internal/config"
	"github.com/mvgalabs/staking-rewards-service/internal/db"
	dbmodel "github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/queue"
	"github.com/mvgalabs/staking-rewards-service/internal/services"
)

// runtime holds everything a sub-command needs to talk to the ledger and
// the settlement network.
type runtime struct {
	cfg       *config.Config
	service   *services.Service
	dbClient  *db.Database
	publisher queue.EventPublisher
}

func (r *runtime) Close(ctx context.Context) {
	r.service.WaitSideEffects()
	r.publisher.Shutdown()
	if err := r.dbClient.Disconnect(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to disconnect from database")
	}
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfgPath := GetConfigPath()
	cfg, err := config.New(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("error while loading config file %s: %w", cfgPath, err)
	}

	if err := dbmodel.Setup(ctx, &cfg.Db); err != nil {
		return nil, fmt.Errorf("error while setting up staking db model: %w", err)
	}

	dbClient, err := db.New(ctx, cfg.Db)
	if err != nil {
		return nil, fmt.Errorf("error while creating db client: %w", err)
	}

	decimals := uint8(cfg.Staking.TokenDecimals)

	vaultClient, err := solclient.New(&cfg.Solana, cfg.Vault.Address, cfg.Vault.SignerKey, decimals)
	if err != nil {
		return nil, fmt.Errorf("error while creating vault client: %w", err)
	}
	vault := solclient.NewSettlementWithMetrics(vaultClient)

	// the treasury is optional: without a signer there is nothing it can do
	var treasury solclient.SettlementInterface
	if cfg.Treasury.SignerKey != "" {
		treasuryClient, err := solclient.New(&cfg.Solana, "", cfg.Treasury.SignerKey, decimals)
		if err != nil {
			return nil, fmt.Errorf("error while creating treasury client: %w", err)
		}
		treasury = solclient.NewSettlementWithMetrics(treasuryClient)
	}

	var publisher queue.EventPublisher = queue.NoopPublisher{}
	if cfg.Queue != nil {
		qm, err := queue.NewQueueManager(cfg.Queue)
		if err != nil {
			return nil, fmt.Errorf("error while creating queue manager: %w", err)
		}
		publisher = qm
	}

	service, err := services.NewService(cfg, db.NewDbWithMetrics(dbClient), vault, treasury, publisher, clockwork.NewRealClock())
	if err != nil {
		return nil, fmt.Errorf("error while creating service: %w", err)
	}

	return &runtime{
		cfg:       cfg,
		service:   service,
		dbClient:  dbClient,
		publisher: publisher,
	}, nil
}
