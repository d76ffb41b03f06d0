package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

func (db *Database) SaveTransactionLog(ctx context.Context, txLog *model.TransactionLog) error {
	_, err := db.collection(model.TransactionLogsCollection).InsertOne(ctx, txLog)
	if err != nil {
		if isDuplicateKey(err) {
			return &DuplicateKeyError{
				Key:     txLog.Reference,
				Message: "transaction log already exists",
			}
		}
		return err
	}
	return nil
}

func (db *Database) UpdateTransactionLogStatus(
	ctx context.Context, reference string, status types.TransactionLogStatus, errMsg string, at time.Time,
) error {
	set := bson.M{"status": status}
	if status == types.TxLogConfirmed {
		set["confirmed_at"] = at
	}
	if errMsg != "" {
		set["error"] = errMsg
	}

	res, err := db.collection(model.TransactionLogsCollection).UpdateOne(ctx, bson.M{"_id": reference}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &NotFoundError{
			Key:     reference,
			Message: "transaction log not found",
		}
	}
	return nil
}
