package pkg

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ValidateWalletAddress checks that address is a base58 encoded ed25519
// public key.
func ValidateWalletAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("invalid wallet address %q: %w", address, err)
	}
	return nil
}
