package memdb

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/observability/metrics"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

// userLock returns the single-slot semaphore guarding a user's positions.
func (s *Store) userLock(userID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	sem, ok := s.userLocks[userID]
	if !ok {
		sem = make(chan struct{}, 1)
		s.userLocks[userID] = sem
	}
	return sem
}

// WithPositionLock serialises position-locked work per user. Mutations made
// through the LockedTx are staged on copies and applied in one step when fn
// returns nil, otherwise they are discarded.
func (s *Store) WithPositionLock(ctx context.Context, userID string, fn db.LockedFunc) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	sem := s.userLock(userID)
	select {
	case sem <- struct{}{}:
	default:
		metrics.RecordLockContention("position", 1)
		wait := time.NewTimer(s.lockWait)
		defer wait.Stop()

		select {
		case sem <- struct{}{}:
		case <-wait.C:
			return &db.LockConflictError{
				Key:     userID,
				Message: "timed out waiting for position lock",
			}
		case <-ctx.Done():
			return &db.LockConflictError{
				Key:     userID,
				Message: "timed out waiting for position lock",
				Err:     ctx.Err(),
			}
		}
	}
	defer func() { <-sem }()

	s.mu.RLock()
	positions := s.activePositionsLocked(userID)
	s.mu.RUnlock()
	if len(positions) == 0 {
		return &db.NothingLockedError{Key: userID}
	}

	tx := &lockedTx{store: s, userID: userID, positions: positions}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("position lock transaction expired: %w", err)
	}

	return s.commit(tx)
}

func (s *Store) commit(tx *lockedTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range tx.claims {
		if _, ok := s.claimRefs[c.TxReference]; ok {
			return &db.DuplicateKeyError{
				Key:     c.TxReference,
				Message: "reward claim reference already recorded",
			}
		}
	}
	for _, c := range tx.claims {
		s.claims = append(s.claims, c)
		s.claimRefs[c.TxReference] = struct{}{}
	}
	for _, apply := range tx.ops {
		apply(s)
	}
	return nil
}

type lockedTx struct {
	store     *Store
	userID    string
	positions []*model.StakePosition
	claims    []*model.RewardClaim
	ops       []func(*Store)

	pendingSaved   []*model.PendingSettlement
	pendingDeleted map[string]bool
}

func (t *lockedTx) Positions() []*model.StakePosition {
	return t.positions
}

func (t *lockedTx) position(id string) (*model.StakePosition, error) {
	for _, p := range t.positions {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, &db.NotFoundError{
		Key:     id,
		Message: "position is not part of the locked set",
	}
}

func (t *lockedTx) activePosition(id string) (*model.StakePosition, error) {
	p, err := t.position(id)
	if err != nil {
		return nil, err
	}
	if p.Status != types.PositionActive {
		return nil, &db.NotFoundError{
			Key:     id,
			Message: "active stake position not found",
		}
	}
	return p, nil
}

func (t *lockedTx) LatestRewardClaim(ctx context.Context) (*model.RewardClaim, error) {
	var latest *model.RewardClaim
	for _, c := range t.claims {
		if latest == nil || c.ClaimedAt.After(latest.ClaimedAt) {
			latest = c
		}
	}
	if latest != nil {
		return copyClaim(latest), nil
	}
	return t.store.GetLatestRewardClaim(ctx, t.userID)
}

func (t *lockedTx) SaveRewardClaim(_ context.Context, claim *model.RewardClaim) error {
	t.store.mu.RLock()
	_, committed := t.store.claimRefs[claim.TxReference]
	t.store.mu.RUnlock()

	staged := false
	for _, c := range t.claims {
		if c.TxReference == claim.TxReference {
			staged = true
		}
	}
	if committed || staged {
		return &db.DuplicateKeyError{
			Key:     claim.TxReference,
			Message: "reward claim reference already recorded",
		}
	}

	t.claims = append(t.claims, copyClaim(claim))
	return nil
}

func (t *lockedTx) AdvanceLastClaimed(_ context.Context, at time.Time) error {
	ids := make([]string, 0, len(t.positions))
	for _, p := range t.positions {
		if p.Status != types.PositionActive {
			return fmt.Errorf("position %s is no longer active", p.ID)
		}
		ids = append(ids, p.ID)
	}

	for _, p := range t.positions {
		claimed := at
		p.LastClaimedAt = &claimed
	}
	t.ops = append(t.ops, func(s *Store) {
		for _, id := range ids {
			claimed := at
			s.positions[id].LastClaimedAt = &claimed
		}
	})
	return nil
}

func (t *lockedTx) IncrementPrincipal(_ context.Context, positionID string, amount sdkmath.Int) error {
	p, err := t.activePosition(positionID)
	if err != nil {
		return err
	}

	p.Amount = p.Amount.Add(amount)
	p.CompoundedTotal = p.CompoundedTotal.Add(amount)
	t.ops = append(t.ops, func(s *Store) {
		stored := s.positions[positionID]
		stored.Amount = stored.Amount.Add(amount)
		stored.CompoundedTotal = stored.CompoundedTotal.Add(amount)
	})
	return nil
}

func (t *lockedTx) ReducePrincipal(_ context.Context, positionID string, amount sdkmath.Int) error {
	p, err := t.activePosition(positionID)
	if err != nil {
		return err
	}
	if amount.GTE(p.Amount) {
		return fmt.Errorf("cannot reduce principal %s by %s, unstake the position instead", p.Amount, amount)
	}

	remaining := p.Amount.Sub(amount)
	p.Amount = remaining
	t.ops = append(t.ops, func(s *Store) {
		s.positions[positionID].Amount = remaining
	})
	return nil
}

func (t *lockedTx) MarkUnstaked(_ context.Context, positionID, unstakeTx string, at time.Time) error {
	p, err := t.activePosition(positionID)
	if err != nil {
		return err
	}

	p.Status = types.PositionUnstaked
	p.UnstakeTx = unstakeTx
	unstakedAt := at
	p.UnstakedAt = &unstakedAt
	t.ops = append(t.ops, func(s *Store) {
		stored := s.positions[positionID]
		stored.Status = types.PositionUnstaked
		stored.UnstakeTx = unstakeTx
		storedAt := at
		stored.UnstakedAt = &storedAt
	})
	return nil
}
