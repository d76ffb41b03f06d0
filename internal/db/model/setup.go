package model

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mvgalabs/staking-rewards-service/internal/config"
)

type index struct {
	Keys   bson.D
	Unique bool
	Sparse bool
}

var collections = map[string][]index{
	StakePositionsCollection: {
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "auto_compound", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "stake_tx", Value: 1}}, Unique: true, Sparse: true},
	},
	RewardClaimsCollection: {
		{Keys: bson.D{{Key: "tx_reference", Value: 1}}, Unique: true},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "claimed_at", Value: -1}}},
	},
	FeeSnapshotsCollection: {
		{Keys: bson.D{{Key: "distribution_id", Value: 1}}, Unique: true},
		{Keys: bson.D{{Key: "period_end", Value: 1}}},
	},
	FeeCollectionsCollection: {
		{Keys: bson.D{{Key: "collected", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "tx_reference", Value: 1}}, Unique: true, Sparse: true},
	},
	TreasuryDistributionsCollection: {
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	},
	TreasuryBalancesCollection: {
		{Keys: bson.D{{Key: "snapshot_at", Value: -1}}},
	},
	VaultReconciliationsCollection: {
		{Keys: bson.D{{Key: "checked_at", Value: -1}}},
	},
	TransactionLogsCollection: {
		{Keys: bson.D{{Key: "wallet_address", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	},
	PendingSettlementsCollection: {
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	},
	ReferralsCollection: nil,
	ReferralBonusesCollection: {
		{Keys: bson.D{{Key: "claim_reference", Value: 1}}, Unique: true},
	},
	JobLocksCollection:     nil,
	JobRunsCollection:      nil,
	OverallStatsCollection: nil,
}

// Setup creates the collections and their indexes. It is idempotent.
func Setup(ctx context.Context, cfg *config.DbConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOps := options.Client().ApplyURI(cfg.Address).SetRegistry(Registry())
	if cfg.Username != "" {
		clientOps.SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password})
	}

	client, err := mongo.Connect(ctx, clientOps)
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	defer client.Disconnect(ctx) //nolint:errcheck

	database := client.Database(cfg.DbName)

	existing, err := database.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	exists := make(map[string]bool, len(existing))
	for _, name := range existing {
		exists[name] = true
	}

	for name, indexes := range collections {
		// collections must exist before they are used inside a transaction
		if !exists[name] {
			if err := database.CreateCollection(ctx, name); err != nil {
				return fmt.Errorf("failed to create collection %s: %w", name, err)
			}
		}

		if len(indexes) == 0 {
			continue
		}

		models := make([]mongo.IndexModel, 0, len(indexes))
		for _, idx := range indexes {
			opts := options.Index().SetUnique(idx.Unique)
			if idx.Sparse {
				opts.SetSparse(true)
			}
			models = append(models, mongo.IndexModel{Keys: idx.Keys, Options: opts})
		}

		if _, err := database.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}

	log.Ctx(ctx).Info().Msg("collections and indexes created")
	return nil
}
