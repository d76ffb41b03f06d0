package db

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
)

func (db *Database) GetReferral(ctx context.Context, refereeUserID string) (*model.Referral, error) {
	var referral model.Referral
	err := db.collection(model.ReferralsCollection).
		FindOne(ctx, bson.M{"_id": refereeUserID}).
		Decode(&referral)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     refereeUserID,
				Message: "no referrer for user",
			}
		}
		return nil, err
	}
	return &referral, nil
}

func (db *Database) SaveReferral(ctx context.Context, referral *model.Referral) error {
	_, err := db.collection(model.ReferralsCollection).InsertOne(ctx, referral)
	if err != nil {
		if isDuplicateKey(err) {
			return &DuplicateKeyError{
				Key:     referral.RefereeUserID,
				Message: "user already has a referrer",
			}
		}
		return err
	}
	return nil
}

func (db *Database) SaveReferralBonus(ctx context.Context, bonus *model.ReferralBonus) error {
	_, err := db.collection(model.ReferralBonusesCollection).InsertOne(ctx, bonus)
	if err != nil {
		if isDuplicateKey(err) {
			return &DuplicateKeyError{
				Key:     bonus.ClaimReference,
				Message: "referral bonus already paid for claim",
			}
		}
		return err
	}
	return nil
}
