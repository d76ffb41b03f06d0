package testutil

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

// RandomWallet returns a fresh base58 wallet address.
func RandomWallet() string {
	return solana.NewWallet().PublicKey().String()
}

// RandomSignature returns a random base58 transaction signature.
func RandomSignature() string {
	var sig solana.Signature
	for i := range sig {
		sig[i] = gofakeit.Uint8()
	}
	return sig.String()
}

func RandomUserID() string {
	return gofakeit.UUID()
}

// GeneratePosition returns an ACTIVE position of amount created at createdAt.
func GeneratePosition(userID string, amount sdkmath.Int, lockDays uint32, createdAt time.Time) *model.StakePosition {
	return model.NewStakePosition(
		uuid.NewString(), userID, RandomWallet(), amount, lockDays, RandomSignature(), gofakeit.Bool(), createdAt,
	)
}

// GenerateFee returns an uncollected fee of amount from a random source.
func GenerateFee(amount sdkmath.Int, createdAt time.Time) *model.FeeCollection {
	sources := []types.FeeSource{
		types.FeeSourceSwap,
		types.FeeSourceMobileTopup,
		types.FeeSourceGiftCard,
		types.FeeSourceYield,
		types.FeeSourceOther,
	}
	return &model.FeeCollection{
		ID:          uuid.NewString(),
		Source:      sources[gofakeit.IntN(len(sources))],
		Amount:      amount,
		Token:       gofakeit.LetterN(4),
		TxReference: RandomSignature(),
		CreatedAt:   createdAt,
	}
}
