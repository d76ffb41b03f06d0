package db

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
)

func (db *Database) SaveVaultReconciliation(ctx context.Context, rec *model.VaultReconciliation) error {
	_, err := db.collection(model.VaultReconciliationsCollection).InsertOne(ctx, rec)
	return err
}

func (db *Database) GetLatestVaultReconciliation(ctx context.Context) (*model.VaultReconciliation, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "checked_at", Value: -1}})

	var rec model.VaultReconciliation
	err := db.collection(model.VaultReconciliationsCollection).FindOne(ctx, bson.M{}, opts).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     model.VaultReconciliationsCollection,
				Message: "no vault reconciliation",
			}
		}
		return nil, err
	}
	return &rec, nil
}
