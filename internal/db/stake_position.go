package db

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

func (db *Database) SaveNewStakePosition(ctx context.Context, position *model.StakePosition) error {
	_, err := db.collection(model.StakePositionsCollection).InsertOne(ctx, position)
	if err != nil {
		if isDuplicateKey(err) {
			return &DuplicateKeyError{
				Key:     position.StakeTx,
				Message: "stake transaction already used",
			}
		}
		return err
	}
	return nil
}

func (db *Database) IsStakeTxUsed(ctx context.Context, stakeTx string) (bool, error) {
	count, err := db.collection(model.StakePositionsCollection).
		CountDocuments(ctx, bson.M{"stake_tx": stakeTx}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *Database) GetStakePositionByID(ctx context.Context, id string) (*model.StakePosition, error) {
	var position model.StakePosition
	err := db.collection(model.StakePositionsCollection).
		FindOne(ctx, bson.M{"_id": id}).
		Decode(&position)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     id,
				Message: "stake position not found",
			}
		}
		return nil, err
	}
	return &position, nil
}

func (db *Database) GetActivePositionsByUser(ctx context.Context, userID string) ([]*model.StakePosition, error) {
	return findActivePositions(ctx, db.collection(model.StakePositionsCollection), userID)
}

func findActivePositions(ctx context.Context, coll *mongo.Collection, userID string) ([]*model.StakePosition, error) {
	filter := bson.M{
		"user_id": userID,
		"status":  types.PositionActive,
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var positions []*model.StakePosition
	if err := cursor.All(ctx, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (db *Database) SetAutoCompound(ctx context.Context, userID, positionID string, enabled bool) error {
	filter := bson.M{
		"_id":     positionID,
		"user_id": userID,
		"status":  types.PositionActive,
	}
	update := bson.M{"$set": bson.M{"auto_compound": enabled}}

	res, err := db.collection(model.StakePositionsCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &NotFoundError{
			Key:     positionID,
			Message: "active stake position not found for user",
		}
	}
	return nil
}

func (db *Database) FindAutoCompoundPositions(ctx context.Context, afterID string, limit int64) ([]*model.StakePosition, error) {
	filter := bson.M{
		"status":        types.PositionActive,
		"auto_compound": true,
	}
	if afterID != "" {
		filter["_id"] = bson.M{"$gt": afterID}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(limit)

	cursor, err := db.collection(model.StakePositionsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var positions []*model.StakePosition
	if err := cursor.All(ctx, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// GetActiveStakeStats sums ACTIVE principals and counts positions and
// distinct stakers in a single aggregation.
func (db *Database) GetActiveStakeStats(ctx context.Context) (*ActiveStakeStats, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"status": types.PositionActive}},
		// one row per staker
		bson.M{"$group": bson.M{
			"_id":       "$user_id",
			"staked":    bson.M{"$sum": "$amount"},
			"positions": bson.M{"$sum": 1},
		}},
		bson.M{"$group": bson.M{
			"_id":              nil,
			"total_staked":     bson.M{"$sum": "$staked"},
			"staker_count":     bson.M{"$sum": 1},
			"active_positions": bson.M{"$sum": "$positions"},
		}},
	}

	cursor, err := db.collection(model.StakePositionsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate active stake: %w", err)
	}
	defer cursor.Close(ctx)

	stats := &ActiveStakeStats{TotalStaked: sdkmath.ZeroInt()}
	if cursor.Next(ctx) {
		if err := cursor.Decode(stats); err != nil {
			return nil, err
		}
	}
	return stats, cursor.Err()
}

// GetActivePositionsGroupedByUser groups ACTIVE positions by owner. Only the
// fields needed for weight computation are loaded.
func (db *Database) GetActivePositionsGroupedByUser(ctx context.Context) ([]UserPositions, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"status": types.PositionActive}},
		bson.M{"$sort": bson.D{{Key: "created_at", Value: 1}}},
		bson.M{"$group": bson.M{
			"_id": "$user_id",
			"positions": bson.M{"$push": bson.M{
				"_id":              "$_id",
				"user_id":          "$user_id",
				"amount":           "$amount",
				"lock_period_days": "$lock_period_days",
				"created_at":       "$created_at",
				"status":           "$status",
			}},
		}},
	}

	cursor, err := db.collection(model.StakePositionsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to group active positions: %w", err)
	}
	defer cursor.Close(ctx)

	var grouped []UserPositions
	if err := cursor.All(ctx, &grouped); err != nil {
		return nil, err
	}
	return grouped, nil
}
