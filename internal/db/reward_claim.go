package db

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
)

func (db *Database) GetLatestRewardClaim(ctx context.Context, userID string) (*model.RewardClaim, error) {
	return latestRewardClaim(ctx, db.collection(model.RewardClaimsCollection), userID)
}

func latestRewardClaim(ctx context.Context, coll *mongo.Collection, userID string) (*model.RewardClaim, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "claimed_at", Value: -1}})

	var claim model.RewardClaim
	err := coll.FindOne(ctx, bson.M{"user_id": userID}, opts).Decode(&claim)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     userID,
				Message: "no reward claim for user",
			}
		}
		return nil, err
	}
	return &claim, nil
}
