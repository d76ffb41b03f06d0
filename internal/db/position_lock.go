package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/observability/metrics"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

const (
	lockRetryDelay    = 50 * time.Millisecond
	lockRetryMaxDelay = 500 * time.Millisecond
	commitAttempts    = 5
)

// WithPositionLock emulates SELECT ... FOR UPDATE: the transaction starts by
// bumping lock_version on every ACTIVE position of the user, so any other
// transaction touching those rows fails with a write conflict until this one
// ends. Conflicts are retried until the lock wait timeout.
//
// fn is executed exactly once. Only the commit is retried, and only when
// the server reports an unknown commit result.
func (db *Database) WithPositionLock(ctx context.Context, userID string, fn LockedFunc) error {
	ctx, cancel := context.WithTimeout(ctx, db.cfg.TxTimeout)
	defer cancel()

	session, err := db.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	tx, err := db.lockPositions(ctx, session, userID)
	if err != nil {
		return err
	}

	sessCtx := mongo.NewSessionContext(ctx, session)
	if err := fn(sessCtx, tx); err != nil {
		if abortErr := session.AbortTransaction(context.WithoutCancel(ctx)); abortErr != nil {
			log.Ctx(ctx).Warn().Err(abortErr).Str("user_id", userID).Msg("failed to abort position lock transaction")
		}
		return err
	}

	err = retry.Do(
		func() error {
			return session.CommitTransaction(sessCtx)
		},
		retry.Context(ctx),
		retry.Attempts(commitAttempts),
		retry.Delay(lockRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return hasErrorLabel(err, driverUnknownCommitResult)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to commit position lock transaction: %w", err)
	}
	return nil
}

const (
	driverTransientTxnError   = "TransientTransactionError"
	driverUnknownCommitResult = "UnknownTransactionCommitResult"
)

func hasErrorLabel(err error, label string) bool {
	var serverErr mongo.ServerError
	return errors.As(err, &serverErr) && serverErr.HasErrorLabel(label)
}

func (db *Database) lockPositions(ctx context.Context, session mongo.Session, userID string) (*lockedTx, error) {
	maxCommit := db.cfg.TxTimeout
	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority()).
		SetMaxCommitTime(&maxCommit)

	waitCtx, cancel := context.WithTimeout(ctx, db.cfg.LockWaitTimeout)
	defer cancel()

	var tx *lockedTx
	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			if err := session.StartTransaction(txOpts); err != nil {
				return retry.Unrecoverable(err)
			}

			sessCtx := mongo.NewSessionContext(ctx, session)
			positions, err := db.bumpLockVersions(sessCtx, userID)
			if err != nil {
				_ = session.AbortTransaction(context.WithoutCancel(ctx))
				if hasErrorLabel(err, driverTransientTxnError) {
					return err
				}
				return retry.Unrecoverable(err)
			}

			tx = &lockedTx{db: db, session: session, userID: userID, positions: positions}
			return nil
		},
		retry.Context(waitCtx),
		retry.Attempts(0),
		retry.Delay(lockRetryDelay),
		retry.MaxDelay(lockRetryMaxDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(lockRetryDelay),
		retry.LastErrorOnly(true),
	)
	if attempts > 1 {
		metrics.RecordLockContention("position", attempts-1)
	}
	if err != nil {
		var nothing *NothingLockedError
		if errors.As(err, &nothing) {
			return nil, nothing
		}
		if hasErrorLabel(err, driverTransientTxnError) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &LockConflictError{
				Key:     userID,
				Message: "timed out waiting for position lock",
				Err:     err,
			}
		}
		return nil, err
	}

	return tx, nil
}

// bumpLockVersions writes every ACTIVE position of the user and reads them
// back within the transaction snapshot.
func (db *Database) bumpLockVersions(ctx context.Context, userID string) ([]*model.StakePosition, error) {
	coll := db.collection(model.StakePositionsCollection)
	filter := bson.M{
		"user_id": userID,
		"status":  types.PositionActive,
	}

	res, err := coll.UpdateMany(ctx, filter, bson.M{"$inc": bson.M{"lock_version": 1}})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, &NothingLockedError{Key: userID}
	}

	return findActivePositions(ctx, coll, userID)
}

type lockedTx struct {
	db        *Database
	session   mongo.Session
	userID    string
	positions []*model.StakePosition
}

func (t *lockedTx) Positions() []*model.StakePosition {
	return t.positions
}

func (t *lockedTx) sessionCtx(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, t.session)
}

func (t *lockedTx) position(id string) (*model.StakePosition, error) {
	for _, p := range t.positions {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, &NotFoundError{
		Key:     id,
		Message: "position is not part of the locked set",
	}
}

func (t *lockedTx) LatestRewardClaim(ctx context.Context) (*model.RewardClaim, error) {
	return latestRewardClaim(t.sessionCtx(ctx), t.db.collection(model.RewardClaimsCollection), t.userID)
}

func (t *lockedTx) SaveRewardClaim(ctx context.Context, claim *model.RewardClaim) error {
	_, err := t.db.collection(model.RewardClaimsCollection).InsertOne(t.sessionCtx(ctx), claim)
	if err != nil {
		if isDuplicateKey(err) {
			return &DuplicateKeyError{
				Key:     claim.TxReference,
				Message: "reward claim reference already recorded",
			}
		}
		return err
	}
	return nil
}

func (t *lockedTx) AdvanceLastClaimed(ctx context.Context, at time.Time) error {
	ids := make([]string, len(t.positions))
	for i, p := range t.positions {
		ids[i] = p.ID
	}

	filter := bson.M{
		"_id":    bson.M{"$in": ids},
		"status": types.PositionActive,
	}
	res, err := t.db.collection(model.StakePositionsCollection).
		UpdateMany(t.sessionCtx(ctx), filter, bson.M{"$set": bson.M{"last_claimed_at": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount != int64(len(ids)) {
		return fmt.Errorf("advanced %d of %d locked positions", res.MatchedCount, len(ids))
	}

	for _, p := range t.positions {
		claimed := at
		p.LastClaimedAt = &claimed
	}
	return nil
}

func (t *lockedTx) IncrementPrincipal(ctx context.Context, positionID string, amount sdkmath.Int) error {
	position, err := t.position(positionID)
	if err != nil {
		return err
	}

	update := bson.M{"$inc": bson.M{
		"amount":           amount,
		"compounded_total": amount,
	}}
	if err := t.updateActive(ctx, positionID, update); err != nil {
		return err
	}

	position.Amount = position.Amount.Add(amount)
	position.CompoundedTotal = position.CompoundedTotal.Add(amount)
	return nil
}

func (t *lockedTx) ReducePrincipal(ctx context.Context, positionID string, amount sdkmath.Int) error {
	position, err := t.position(positionID)
	if err != nil {
		return err
	}
	if amount.GTE(position.Amount) {
		return fmt.Errorf("cannot reduce principal %s by %s, unstake the position instead", position.Amount, amount)
	}

	remaining := position.Amount.Sub(amount)
	if err := t.updateActive(ctx, positionID, bson.M{"$set": bson.M{"amount": remaining}}); err != nil {
		return err
	}

	position.Amount = remaining
	return nil
}

func (t *lockedTx) MarkUnstaked(ctx context.Context, positionID, unstakeTx string, at time.Time) error {
	position, err := t.position(positionID)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{
		"status":      types.PositionUnstaked,
		"unstake_tx":  unstakeTx,
		"unstaked_at": at,
	}}
	if err := t.updateActive(ctx, positionID, update); err != nil {
		return err
	}

	position.Status = types.PositionUnstaked
	position.UnstakeTx = unstakeTx
	position.UnstakedAt = &at
	return nil
}

func (t *lockedTx) updateActive(ctx context.Context, positionID string, update bson.M) error {
	filter := bson.M{
		"_id":    positionID,
		"status": types.PositionActive,
	}
	res, err := t.db.collection(model.StakePositionsCollection).UpdateOne(t.sessionCtx(ctx), filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &NotFoundError{
			Key:     positionID,
			Message: "active stake position not found",
		}
	}
	return nil
}
