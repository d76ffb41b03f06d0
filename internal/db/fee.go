package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
)

func (db *Database) SaveFeeSnapshot(ctx context.Context, snapshot *model.FeeSnapshot) error {
	_, err := db.collection(model.FeeSnapshotsCollection).InsertOne(ctx, snapshot)
	if err != nil {
		if isDuplicateKey(err) {
			return &DuplicateKeyError{
				Key:     snapshot.DistributionID,
				Message: "fee snapshot already exists for distribution",
			}
		}
		return err
	}
	return nil
}

func (db *Database) GetFeeSnapshotByDistribution(ctx context.Context, distributionID string) (*model.FeeSnapshot, error) {
	var snapshot model.FeeSnapshot
	err := db.collection(model.FeeSnapshotsCollection).
		FindOne(ctx, bson.M{"distribution_id": distributionID}).
		Decode(&snapshot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     distributionID,
				Message: "fee snapshot not found",
			}
		}
		return nil, err
	}
	return &snapshot, nil
}

func (db *Database) FindFeeSnapshots(ctx context.Context, after *time.Time, from, to time.Time) ([]*model.FeeSnapshot, error) {
	periodEnd := bson.M{
		"$gte": from,
		"$lte": to,
	}
	if after != nil {
		periodEnd["$gt"] = *after
	}

	opts := options.Find().SetSort(bson.D{{Key: "period_end", Value: 1}})
	cursor, err := db.collection(model.FeeSnapshotsCollection).Find(ctx, bson.M{"period_end": periodEnd}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var snapshots []*model.FeeSnapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (db *Database) SaveFeeCollection(ctx context.Context, fee *model.FeeCollection) error {
	_, err := db.collection(model.FeeCollectionsCollection).InsertOne(ctx, fee)
	if err != nil {
		if isDuplicateKey(err) {
			return &DuplicateKeyError{
				Key:     fee.TxReference,
				Message: "fee already recorded",
			}
		}
		return err
	}
	return nil
}

func (db *Database) FindUncollectedFees(ctx context.Context) ([]*model.FeeCollection, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := db.collection(model.FeeCollectionsCollection).Find(ctx, bson.M{"collected": false}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var fees []*model.FeeCollection
	if err := cursor.All(ctx, &fees); err != nil {
		return nil, err
	}
	return fees, nil
}

func (db *Database) GetPendingFeeStats(ctx context.Context) (*PendingFeeStats, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"collected": false}},
		bson.M{"$group": bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$amount"},
			"count": bson.M{"$sum": 1},
		}},
	}

	cursor, err := db.collection(model.FeeCollectionsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate pending fees: %w", err)
	}
	defer cursor.Close(ctx)

	stats := &PendingFeeStats{Total: sdkmath.ZeroInt()}
	if cursor.Next(ctx) {
		if err := cursor.Decode(stats); err != nil {
			return nil, err
		}
	}
	return stats, cursor.Err()
}

func (db *Database) MarkFeesCollected(ctx context.Context, ids []string, distributionID string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	filter := bson.M{
		"_id":       bson.M{"$in": ids},
		"collected": false,
	}
	update := bson.M{"$set": bson.M{
		"collected":       true,
		"collected_at":    at,
		"distribution_id": distributionID,
	}}

	res, err := db.collection(model.FeeCollectionsCollection).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
