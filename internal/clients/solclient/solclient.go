package solclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/avast/retry-go/v4"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/mvgalabs/staking-rewards-service/internal/config"
)

// SolanaClient settles SPL token movements for one owner wallet.
type SolanaClient struct {
	rpcClient  *rpc.Client
	cfg        *config.SolanaConfig
	commitment rpc.CommitmentType
	mint       solana.PublicKey
	decimals   uint8
	owner      solana.PublicKey
	signer     solana.PrivateKey
}

// New returns a client for the owner wallet. signerKey may be empty, in
// which case the client is read-only.
func New(cfg *config.SolanaConfig, owner, signerKey string, decimals uint8) (*SolanaClient, error) {
	mint, err := solana.PublicKeyFromBase58(cfg.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint: %w", err)
	}

	c := &SolanaClient{
		rpcClient:  rpc.New(cfg.RPCAddr),
		cfg:        cfg,
		commitment: rpc.CommitmentType(cfg.Commitment),
		mint:       mint,
		decimals:   decimals,
	}

	if signerKey != "" {
		signer, err := solana.PrivateKeyFromBase58(signerKey)
		if err != nil {
			return nil, fmt.Errorf("invalid signer key: %w", err)
		}
		c.signer = signer
		c.owner = signer.PublicKey()
	}

	if owner != "" {
		ownerKey, err := solana.PublicKeyFromBase58(owner)
		if err != nil {
			return nil, fmt.Errorf("invalid owner address: %w", err)
		}
		if c.signer != nil && !ownerKey.Equals(c.owner) {
			return nil, errors.New("signer key does not match owner address")
		}
		c.owner = ownerKey
	}

	if c.owner.IsZero() {
		return nil, errors.New("either owner address or signer key is required")
	}

	return c, nil
}

func (c *SolanaClient) Address() string {
	return c.owner.String()
}

func (c *SolanaClient) CanSign() bool {
	return c.signer != nil
}

func (c *SolanaClient) Transfer(
	ctx context.Context, destination string, amount sdkmath.Int, opts ...TxOption,
) (string, error) {
	if !c.CanSign() {
		return "", ErrNoSigner
	}
	raw, err := toUint64(amount)
	if err != nil {
		return "", err
	}
	destOwner, err := solana.PublicKeyFromBase58(destination)
	if err != nil {
		return "", fmt.Errorf("invalid destination %q: %w", destination, err)
	}

	source, _, err := solana.FindAssociatedTokenAddress(c.owner, c.mint)
	if err != nil {
		return "", fmt.Errorf("failed to derive source token account: %w", err)
	}
	destAccount, err := c.ensureTokenAccount(ctx, destOwner)
	if err != nil {
		return "", err
	}

	ix := token.NewTransferCheckedInstruction(
		raw, c.decimals, source, c.mint, destAccount, c.owner, nil,
	).Build()
	return c.sendAndConfirm(ctx, []solana.Instruction{ix}, buildTxOptions(opts))
}

func (c *SolanaClient) Burn(ctx context.Context, amount sdkmath.Int, opts ...TxOption) (string, error) {
	if !c.CanSign() {
		return "", ErrNoSigner
	}
	raw, err := toUint64(amount)
	if err != nil {
		return "", err
	}

	source, _, err := solana.FindAssociatedTokenAddress(c.owner, c.mint)
	if err != nil {
		return "", fmt.Errorf("failed to derive source token account: %w", err)
	}

	ix := token.NewBurnCheckedInstruction(raw, c.decimals, source, c.mint, c.owner, nil).Build()
	return c.sendAndConfirm(ctx, []solana.Instruction{ix}, buildTxOptions(opts))
}

// ensureTokenAccount returns the associated token account of the wallet,
// creating it in its own transaction when it does not exist.
func (c *SolanaClient) ensureTokenAccount(ctx context.Context, wallet solana.PublicKey) (solana.PublicKey, error) {
	account, _, err := solana.FindAssociatedTokenAddress(wallet, c.mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive token account: %w", err)
	}

	exists, err := c.accountExists(ctx, account)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if exists {
		return account, nil
	}

	log.Ctx(ctx).Info().
		Str("wallet", wallet.String()).
		Str("token_account", account.String()).
		Msg("creating destination token account")

	ix := associatedtokenaccount.NewCreateInstruction(c.owner, wallet, c.mint).Build()
	ref, err := c.sendAndConfirm(ctx, []solana.Instruction{ix}, &txOptions{})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %s (tx %s)", ErrProvisioning, err.Error(), ref)
	}
	return account, nil
}

func (c *SolanaClient) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	exists, err := clientCallWithRetry(func() (*bool, error) {
		_, err := c.rpcClient.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
			Commitment: c.commitment,
		})
		found := true
		if errors.Is(err, rpc.ErrNotFound) {
			found = false
		} else if err != nil {
			return nil, err
		}
		return &found, nil
	}, c.cfg)
	if err != nil {
		return false, fmt.Errorf("failed to look up account %s: %w", account, err)
	}
	return *exists, nil
}

// sendAndConfirm signs, hands the signature to the OnSigned hook, sends once
// and polls the signature until it is confirmed, failed, expired or the
// confirm timeout elapses.
func (c *SolanaClient) sendAndConfirm(ctx context.Context, instructions []solana.Instruction, o *txOptions) (string, error) {
	blockhash, err := clientCallWithRetry(func() (*rpc.GetLatestBlockhashResult, error) {
		return c.rpcClient.GetLatestBlockhash(ctx, c.commitment)
	}, c.cfg)
	if err != nil {
		return "", fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash.Value.Blockhash, solana.TransactionPayer(c.owner))
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.owner) {
			return &c.signer
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig := tx.Signatures[0]
	ref := sig.String()

	if o.onSigned != nil {
		if err := o.onSigned(ctx, ref); err != nil {
			return "", fmt.Errorf("transaction not sent: %w", err)
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	_, sendErr := c.rpcClient.SendTransactionWithOpts(sendCtx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	cancel()
	if sendErr != nil {
		// the node may still have forwarded it, the status decides
		log.Ctx(ctx).Warn().Err(sendErr).Str("tx_ref", ref).Msg("send returned an error, checking status")
	}

	status, err := c.waitForConfirmation(ctx, sig, blockhash.Value.LastValidBlockHeight)
	if err != nil {
		return ref, err
	}
	switch status {
	case ConfirmationConfirmed:
		return ref, nil
	case ConfirmationFailed:
		return ref, fmt.Errorf("%w: %s", ErrTransactionFailed, ref)
	case ConfirmationNotFound:
		if sendErr != nil {
			return ref, fmt.Errorf("%w: %s", ErrTransactionFailed, sendErr.Error())
		}
		return ref, fmt.Errorf("%w: %s expired without landing", ErrTransactionFailed, ref)
	default:
		return ref, fmt.Errorf("%w: %s", ErrUnconfirmed, ref)
	}
}

var errStillPending = errors.New("transaction still pending")

// waitForConfirmation polls the signature. A signature that is unknown once
// its blockhash expired can never land and is reported as not found.
func (c *SolanaClient) waitForConfirmation(
	ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64,
) (ConfirmationStatus, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	status := ConfirmationPending
	err := retry.Do(
		func() error {
			var err error
			status, err = c.signatureStatus(waitCtx, sig)
			if err != nil {
				return err
			}
			switch status {
			case ConfirmationConfirmed, ConfirmationFailed:
				return nil
			case ConfirmationNotFound:
				height, err := c.rpcClient.GetBlockHeight(waitCtx, c.commitment)
				if err == nil && height > lastValidBlockHeight {
					return nil
				}
			}
			return errStillPending
		},
		retry.Context(waitCtx),
		retry.Attempts(0),
		retry.Delay(c.cfg.RetryInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ConfirmationPending, ctx.Err()
		}
		return ConfirmationPending, nil
	}
	return status, nil
}

func (c *SolanaClient) Confirm(ctx context.Context, reference string) (ConfirmationStatus, error) {
	sig, err := solana.SignatureFromBase58(reference)
	if err != nil {
		return ConfirmationNotFound, fmt.Errorf("invalid reference %q: %w", reference, err)
	}

	status, err := clientCallWithRetry(func() (*ConfirmationStatus, error) {
		s, err := c.signatureStatus(ctx, sig)
		if err != nil {
			return nil, err
		}
		return &s, nil
	}, c.cfg)
	if err != nil {
		return ConfirmationPending, fmt.Errorf("failed to get status of %s: %w", reference, err)
	}
	return *status, nil
}

func (c *SolanaClient) signatureStatus(ctx context.Context, sig solana.Signature) (ConfirmationStatus, error) {
	res, err := c.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return ConfirmationPending, err
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return ConfirmationNotFound, nil
	}
	return statusFromResult(res.Value[0], c.commitment), nil
}

func statusFromResult(res *rpc.SignatureStatusesResult, commitment rpc.CommitmentType) ConfirmationStatus {
	if res.Err != nil {
		return ConfirmationFailed
	}
	switch res.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		return ConfirmationConfirmed
	case rpc.ConfirmationStatusConfirmed:
		if commitment == rpc.CommitmentFinalized {
			return ConfirmationPending
		}
		return ConfirmationConfirmed
	default:
		return ConfirmationPending
	}
}

func (c *SolanaClient) GetBalance(ctx context.Context, owner string) (sdkmath.Int, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("invalid owner %q: %w", owner, err)
	}
	account, _, err := solana.FindAssociatedTokenAddress(ownerKey, c.mint)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("failed to derive token account: %w", err)
	}

	res, err := clientCallWithRetry(func() (*rpc.GetTokenAccountBalanceResult, error) {
		return c.rpcClient.GetTokenAccountBalance(ctx, account, c.commitment)
	}, c.cfg)
	if err != nil {
		// a wallet without a token account holds nothing
		exists, existsErr := c.accountExists(ctx, account)
		if existsErr == nil && !exists {
			return sdkmath.ZeroInt(), nil
		}
		return sdkmath.Int{}, fmt.Errorf("failed to get token balance of %s: %w", owner, err)
	}
	if res.Value == nil {
		return sdkmath.ZeroInt(), nil
	}

	balance, ok := sdkmath.NewIntFromString(res.Value.Amount)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid token amount %q", res.Value.Amount)
	}
	return balance, nil
}

func (c *SolanaClient) VerifyDeposit(
	ctx context.Context, reference, destinationOwner string, amount sdkmath.Int,
) error {
	sig, err := solana.SignatureFromBase58(reference)
	if err != nil {
		return fmt.Errorf("invalid reference %q: %w", reference, err)
	}
	dest, err := solana.PublicKeyFromBase58(destinationOwner)
	if err != nil {
		return fmt.Errorf("invalid destination %q: %w", destinationOwner, err)
	}

	version := uint64(0)
	res, err := clientCallWithRetry(func() (*rpc.GetTransactionResult, error) {
		res, err := c.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Commitment:                     c.commitment,
			MaxSupportedTransactionVersion: &version,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, retry.Unrecoverable(ErrDepositNotFound)
		}
		return res, err
	}, c.cfg)
	if err != nil {
		return err
	}
	if res == nil || res.Meta == nil {
		return ErrDepositNotFound
	}
	if res.Meta.Err != nil {
		return fmt.Errorf("%w: deposit %s", ErrTransactionFailed, reference)
	}

	received := tokenDelta(res.Meta.PreTokenBalances, res.Meta.PostTokenBalances, c.mint, dest)
	if received.LT(amount) {
		return fmt.Errorf("%w: received %s, expected %s", ErrDepositInsufficient, received, amount)
	}
	return nil
}

// tokenDelta is the net change of the owner's balance of mint across the
// transaction. A token account created by the transaction has no pre
// balance.
func tokenDelta(pre, post []rpc.TokenBalance, mint, owner solana.PublicKey) sdkmath.Int {
	sum := func(balances []rpc.TokenBalance) sdkmath.Int {
		total := sdkmath.ZeroInt()
		for _, b := range balances {
			if b.Owner == nil || !b.Owner.Equals(owner) || !b.Mint.Equals(mint) || b.UiTokenAmount == nil {
				continue
			}
			if v, ok := sdkmath.NewIntFromString(b.UiTokenAmount.Amount); ok {
				total = total.Add(v)
			}
		}
		return total
	}
	return sum(post).Sub(sum(pre))
}

func toUint64(amount sdkmath.Int) (uint64, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %s", amount)
	}
	if !amount.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %s overflows a token amount", amount)
	}
	return amount.BigInt().Uint64(), nil
}

// FromUint64 converts a raw token amount.
func FromUint64(v uint64) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(new(big.Int).SetUint64(v))
}

func clientCallWithRetry[T any](
	call retry.RetryableFuncWithData[*T], cfg *config.SolanaConfig,
) (*T, error) {
	result, err := retry.DoWithData(call, retry.Attempts(cfg.MaxRetryTimes), retry.Delay(cfg.RetryInterval), retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().
				Uint("attempt", n+1).
				Uint("max_attempts", cfg.MaxRetryTimes).
				Err(err).
				Msg("failed to call the solana rpc")
		}))

	if err != nil {
		return nil, err
	}
	return result, nil
}
