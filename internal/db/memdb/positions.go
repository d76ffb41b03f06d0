package memdb

import (
	"context"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/db/model"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

func (s *Store) SaveNewStakePosition(_ context.Context, position *model.StakePosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[position.ID]; ok {
		return &db.DuplicateKeyError{
			Key:     position.ID,
			Message: "stake position already exists",
		}
	}
	if position.StakeTx != "" && s.stakeTxUsedLocked(position.StakeTx) {
		return &db.DuplicateKeyError{
			Key:     position.StakeTx,
			Message: "stake transaction already used",
		}
	}

	s.positions[position.ID] = copyPosition(position)
	return nil
}

func (s *Store) stakeTxUsedLocked(stakeTx string) bool {
	for _, p := range s.positions {
		if p.StakeTx == stakeTx {
			return true
		}
	}
	return false
}

func (s *Store) IsStakeTxUsed(_ context.Context, stakeTx string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stakeTxUsedLocked(stakeTx), nil
}

func (s *Store) GetStakePositionByID(_ context.Context, id string) (*model.StakePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, &db.NotFoundError{
			Key:     id,
			Message: "stake position not found",
		}
	}
	return copyPosition(p), nil
}

func (s *Store) GetActivePositionsByUser(_ context.Context, userID string) ([]*model.StakePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activePositionsLocked(userID), nil
}

// activePositionsLocked returns copies ordered by creation time then id.
func (s *Store) activePositionsLocked(userID string) []*model.StakePosition {
	var out []*model.StakePosition
	for _, p := range s.positions {
		if p.UserID == userID && p.Status == types.PositionActive {
			out = append(out, copyPosition(p))
		}
	}
	sortByCreation(out)
	return out
}

func sortByCreation(positions []*model.StakePosition) {
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].CreatedAt.Equal(positions[j].CreatedAt) {
			return positions[i].ID < positions[j].ID
		}
		return positions[i].CreatedAt.Before(positions[j].CreatedAt)
	})
}

func (s *Store) SetAutoCompound(_ context.Context, userID, positionID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[positionID]
	if !ok || p.UserID != userID || p.Status != types.PositionActive {
		return &db.NotFoundError{
			Key:     positionID,
			Message: "active stake position not found for user",
		}
	}
	p.AutoCompound = enabled
	return nil
}

func (s *Store) FindAutoCompoundPositions(_ context.Context, afterID string, limit int64) ([]*model.StakePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.StakePosition
	for _, p := range s.positions {
		if p.Status != types.PositionActive || !p.AutoCompound {
			continue
		}
		if afterID != "" && p.ID <= afterID {
			continue
		}
		out = append(out, copyPosition(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetActiveStakeStats(_ context.Context) (*db.ActiveStakeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &db.ActiveStakeStats{TotalStaked: sdkmath.ZeroInt()}
	stakers := make(map[string]struct{})
	for _, p := range s.positions {
		if p.Status != types.PositionActive {
			continue
		}
		stats.TotalStaked = stats.TotalStaked.Add(p.Amount)
		stats.ActivePositions++
		stakers[p.UserID] = struct{}{}
	}
	stats.StakerCount = uint64(len(stakers))
	return stats, nil
}

func (s *Store) GetActivePositionsGroupedByUser(_ context.Context) ([]db.UserPositions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUser := make(map[string][]*model.StakePosition)
	for _, p := range s.positions {
		if p.Status == types.PositionActive {
			byUser[p.UserID] = append(byUser[p.UserID], copyPosition(p))
		}
	}

	grouped := make([]db.UserPositions, 0, len(byUser))
	for userID, positions := range byUser {
		sortByCreation(positions)
		grouped = append(grouped, db.UserPositions{UserID: userID, Positions: positions})
	}
	sort.Slice(grouped, func(i, j int) bool { return grouped[i].UserID < grouped[j].UserID })
	return grouped, nil
}
