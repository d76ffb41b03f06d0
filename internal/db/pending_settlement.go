package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
)

func (db *Database) SavePendingSettlement(ctx context.Context, pending *model.PendingSettlement) error {
	_, err := db.collection(model.PendingSettlementsCollection).InsertOne(ctx, pending)
	if err != nil && !isDuplicateKey(err) {
		return err
	}
	return nil
}

func (db *Database) HasPendingSettlement(ctx context.Context, userID string) (bool, error) {
	count, err := db.collection(model.PendingSettlementsCollection).
		CountDocuments(ctx, bson.M{"user_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *Database) FindPendingSettlementUsers(ctx context.Context) ([]string, error) {
	values, err := db.collection(model.PendingSettlementsCollection).Distinct(ctx, "user_id", bson.M{})
	if err != nil {
		return nil, err
	}

	users := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			users = append(users, id)
		}
	}
	return users, nil
}

func (t *lockedTx) PendingSettlements(ctx context.Context) ([]*model.PendingSettlement, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := t.db.collection(model.PendingSettlementsCollection).
		Find(t.sessionCtx(ctx), bson.M{"user_id": t.userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var pending []*model.PendingSettlement
	if err := cursor.All(ctx, &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

func (t *lockedTx) SavePendingSettlement(ctx context.Context, pending *model.PendingSettlement) error {
	_, err := t.db.collection(model.PendingSettlementsCollection).InsertOne(t.sessionCtx(ctx), pending)
	if err != nil {
		if isDuplicateKey(err) {
			return &DuplicateKeyError{
				Key:     pending.Reference,
				Message: "pending settlement already recorded",
			}
		}
		return err
	}
	return nil
}

func (t *lockedTx) DeletePendingSettlement(ctx context.Context, reference string) error {
	res, err := t.db.collection(model.PendingSettlementsCollection).
		DeleteOne(t.sessionCtx(ctx), bson.M{"_id": reference, "user_id": t.userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return &NotFoundError{
			Key:     reference,
			Message: "pending settlement not found",
		}
	}
	return nil
}
