package memdb

import (
	"context"
	"sort"

	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
)

func (s *Store) SavePendingSettlement(_ context.Context, pending *model.PendingSettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[pending.Reference]; !ok {
		s.pending[pending.Reference] = copyPending(pending)
	}
	return nil
}

func (s *Store) HasPendingSettlement(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pending {
		if p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) FindPendingSettlementUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var users []string
	for _, p := range s.pending {
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		users = append(users, p.UserID)
	}
	sort.Strings(users)
	return users, nil
}

func (t *lockedTx) PendingSettlements(_ context.Context) ([]*model.PendingSettlement, error) {
	t.store.mu.RLock()
	var out []*model.PendingSettlement
	for _, p := range t.store.pending {
		if p.UserID == t.userID && !t.pendingDeleted[p.Reference] {
			out = append(out, copyPending(p))
		}
	}
	t.store.mu.RUnlock()

	for _, p := range t.pendingSaved {
		if !t.pendingDeleted[p.Reference] {
			out = append(out, copyPending(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *lockedTx) SavePendingSettlement(_ context.Context, pending *model.PendingSettlement) error {
	t.store.mu.RLock()
	_, committed := t.store.pending[pending.Reference]
	t.store.mu.RUnlock()

	staged := false
	for _, p := range t.pendingSaved {
		if p.Reference == pending.Reference {
			staged = true
		}
	}
	if committed || staged {
		return &db.DuplicateKeyError{
			Key:     pending.Reference,
			Message: "pending settlement already recorded",
		}
	}

	saved := copyPending(pending)
	t.pendingSaved = append(t.pendingSaved, saved)
	t.ops = append(t.ops, func(s *Store) {
		s.pending[saved.Reference] = saved
	})
	return nil
}

func (t *lockedTx) DeletePendingSettlement(_ context.Context, reference string) error {
	t.store.mu.RLock()
	stored, committed := t.store.pending[reference]
	t.store.mu.RUnlock()

	found := committed && stored.UserID == t.userID
	for _, p := range t.pendingSaved {
		if p.Reference == reference {
			found = true
		}
	}
	if !found || t.pendingDeleted[reference] {
		return &db.NotFoundError{
			Key:     reference,
			Message: "pending settlement not found",
		}
	}

	if t.pendingDeleted == nil {
		t.pendingDeleted = make(map[string]bool)
	}
	t.pendingDeleted[reference] = true
	t.ops = append(t.ops, func(s *Store) {
		delete(s.pending, reference)
	})
	return nil
}
