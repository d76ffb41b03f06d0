package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

func (db *Database) SaveNewDistribution(ctx context.Context, distribution *model.TreasuryDistribution) error {
	_, err := db.collection(model.TreasuryDistributionsCollection).InsertOne(ctx, distribution)
	if err != nil {
		if isDuplicateKey(err) {
			return &DuplicateKeyError{
				Key:     distribution.ID,
				Message: "distribution already exists",
			}
		}
		return err
	}
	return nil
}

func (db *Database) GetInProgressDistribution(ctx context.Context) (*model.TreasuryDistribution, error) {
	return db.findOneDistribution(ctx, bson.M{"status": types.DistributionInProgress})
}

func (db *Database) GetLatestDistribution(ctx context.Context) (*model.TreasuryDistribution, error) {
	return db.findOneDistribution(ctx, bson.M{})
}

func (db *Database) findOneDistribution(ctx context.Context, filter bson.M) (*model.TreasuryDistribution, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var distribution model.TreasuryDistribution
	err := db.collection(model.TreasuryDistributionsCollection).FindOne(ctx, filter, opts).Decode(&distribution)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     fmt.Sprint(filter),
				Message: "distribution not found",
			}
		}
		return nil, err
	}
	return &distribution, nil
}

// UpdateDistributionStep replaces the step with the same name. Only IN_PROGRESS
// distributions accept step updates.
func (db *Database) UpdateDistributionStep(ctx context.Context, distributionID string, step model.DistributionStep) error {
	filter := bson.M{
		"_id":        distributionID,
		"status":     types.DistributionInProgress,
		"steps.name": step.Name,
	}
	update := bson.M{"$set": bson.M{"steps.$": step}}

	res, err := db.collection(model.TreasuryDistributionsCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &NotFoundError{
			Key:     distributionID,
			Message: "in progress distribution with step " + step.Name.String() + " not found",
		}
	}
	return nil
}

func (db *Database) SetDistributionFeeSnapshot(ctx context.Context, distributionID, snapshotID string) error {
	res, err := db.collection(model.TreasuryDistributionsCollection).UpdateOne(
		ctx,
		bson.M{"_id": distributionID},
		bson.M{"$set": bson.M{"fee_snapshot_id": snapshotID}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &NotFoundError{
			Key:     distributionID,
			Message: "distribution not found",
		}
	}
	return nil
}

func (db *Database) FinalizeDistribution(
	ctx context.Context, distributionID string, status types.DistributionStatus, at time.Time,
) error {
	filter := bson.M{
		"_id":    distributionID,
		"status": types.DistributionInProgress,
	}
	update := bson.M{"$set": bson.M{
		"status":      status,
		"executed_at": at,
	}}

	res, err := db.collection(model.TreasuryDistributionsCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &NotFoundError{
			Key:     distributionID,
			Message: "in progress distribution not found",
		}
	}
	return nil
}

func (db *Database) GetDistributionHistory(ctx context.Context, limit int64) ([]*model.TreasuryDistribution, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := db.collection(model.TreasuryDistributionsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var distributions []*model.TreasuryDistribution
	if err := cursor.All(ctx, &distributions); err != nil {
		return nil, err
	}
	return distributions, nil
}

func (db *Database) GetDistributionTotals(ctx context.Context) (*DistributionTotals, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"status": types.DistributionCompleted}},
		bson.M{"$group": bson.M{
			"_id":                nil,
			"total_revenue":      bson.M{"$sum": "$total_amount"},
			"total_burned":       bson.M{"$sum": "$burn_amount"},
			"total_liquidity":    bson.M{"$sum": "$liquidity_amount"},
			"total_vault_refill": bson.M{"$sum": "$vault_refill_amount"},
			"total_fee_share":    bson.M{"$sum": "$fee_share_amount"},
			"total_grants":       bson.M{"$sum": "$grants_amount"},
			"count":              bson.M{"$sum": 1},
		}},
	}

	cursor, err := db.collection(model.TreasuryDistributionsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate distributions: %w", err)
	}
	defer cursor.Close(ctx)

	totals := ZeroDistributionTotals()
	if cursor.Next(ctx) {
		if err := cursor.Decode(totals); err != nil {
			return nil, err
		}
	}
	return totals, cursor.Err()
}

func (db *Database) SaveTreasuryBalance(ctx context.Context, balance *model.TreasuryBalance) error {
	_, err := db.collection(model.TreasuryBalancesCollection).InsertOne(ctx, balance)
	return err
}

func (db *Database) GetLatestTreasuryBalance(ctx context.Context) (*model.TreasuryBalance, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "snapshot_at", Value: -1}})

	var balance model.TreasuryBalance
	err := db.collection(model.TreasuryBalancesCollection).FindOne(ctx, bson.M{}, opts).Decode(&balance)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     model.TreasuryBalancesCollection,
				Message: "no treasury balance snapshot",
			}
		}
		return nil, err
	}
	return &balance, nil
}
