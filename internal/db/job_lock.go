package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
)

// AcquireJobLock takes the named lease if it is absent or expired. The
// upsert filter only matches an expired lease, so when a live lease exists
// the upsert collides on _id and the lock is reported as held.
func (db *Database) AcquireJobLock(
	ctx context.Context, name, holder string, ttl time.Duration, now time.Time,
) (*model.JobLock, error) {
	lock := &model.JobLock{
		Name:       name,
		Holder:     holder,
		Token:      uuid.NewString(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	filter := bson.M{
		"_id":        name,
		"expires_at": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{
		"holder":      lock.Holder,
		"token":       lock.Token,
		"acquired_at": lock.AcquiredAt,
		"expires_at":  lock.ExpiresAt,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored model.JobLock
	err := db.collection(model.JobLocksCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, nil
		}
		return nil, err
	}
	if stored.Token != lock.Token {
		return nil, nil
	}
	return lock, nil
}

// ReleaseJobLock deletes the lease only if it still carries the token. A
// lease that expired and was taken over is left alone.
func (db *Database) ReleaseJobLock(ctx context.Context, name, token string) error {
	_, err := db.collection(model.JobLocksCollection).DeleteOne(ctx, bson.M{
		"_id":   name,
		"token": token,
	})
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}
	return nil
}

// GetJobRun returns NotFoundError if the job never completed.
func (db *Database) GetJobRun(ctx context.Context, name string) (*model.JobRun, error) {
	var run model.JobRun
	err := db.collection(model.JobRunsCollection).FindOne(ctx, bson.M{"_id": name}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     name,
				Message: "job run not found",
			}
		}
		return nil, err
	}
	return &run, nil
}

func (db *Database) RecordJobRun(ctx context.Context, name, holder string, at time.Time) error {
	_, err := db.collection(model.JobRunsCollection).UpdateOne(
		ctx,
		bson.M{"_id": name},
		bson.M{"$set": bson.M{"holder": holder, "last_run_at": at}},
		options.Update().SetUpsert(true),
	)
	return err
}
