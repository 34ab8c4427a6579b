package store

import (
	"context"
	"sort"
	"sync"

	"celebrate/internal/celebration/models"
	"celebrate/pkg/domain"
	"celebrate/pkg/platform/sentinel"
)

// InMemoryStore keeps celebrations in maps guarded by a single mutex, which
// makes Create's key check, limit check and insert one critical section.
type InMemoryStore struct {
	mu    sync.RWMutex
	byID  map[domain.CelebrationID]*models.Celebration
	byKey map[domain.IdempotencyKey]domain.CelebrationID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:  make(map[domain.CelebrationID]*models.Celebration),
		byKey: make(map[domain.IdempotencyKey]domain.CelebrationID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, c *models.Celebration, check CreateCheck) (*models.Celebration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[c.IdempotencyKey]; ok {
		return s.byID[id].Clone(), sentinel.ErrAlreadyUsed
	}
	if _, ok := s.byID[c.ID]; ok {
		return nil, sentinel.ErrConflict
	}
	if check != nil {
		if err := check(s.filterLocked(Filter{DonorID: c.DonorID})); err != nil {
			return nil, err
		}
	}
	s.byID[c.ID] = c.Clone()
	s.byKey[c.IdempotencyKey] = c.ID
	return c.Clone(), nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.CelebrationID) (*models.Celebration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) FindByIdempotencyKey(_ context.Context, key domain.IdempotencyKey) (*models.Celebration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *InMemoryStore) ConditionalUpdate(_ context.Context, c *models.Celebration, expected models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(c, expected, nil)
}

func (s *InMemoryStore) ConditionalUpdateChecked(_ context.Context, c *models.Celebration, expected models.Status, check CreateCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(c, expected, check)
}

func (s *InMemoryStore) updateLocked(c *models.Celebration, expected models.Status, check CreateCheck) error {
	current, ok := s.byID[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expected || current.Ledger.LastSequence() != c.Ledger.LastSequence()-1 {
		return sentinel.ErrConflict
	}
	if check != nil {
		if err := check(s.filterLocked(Filter{DonorID: c.DonorID})); err != nil {
			return err
		}
	}
	s.byID[c.ID] = c.Clone()
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, filter Filter) ([]*models.Celebration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(filter), nil
}

func (s *InMemoryStore) ListBills(_ context.Context, statuses []models.Status) ([]domain.BillID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[domain.BillID]struct{})
	filter := Filter{Statuses: statuses}
	for _, c := range s.byID {
		if filter.matches(c) {
			seen[c.BillID] = struct{}{}
		}
	}
	bills := make([]domain.BillID, 0, len(seen))
	for b := range seen {
		bills = append(bills, b)
	}
	sort.Slice(bills, func(i, j int) bool { return bills[i] < bills[j] })
	return bills, nil
}

// filterLocked returns clones ordered by creation time. Caller holds mu.
func (s *InMemoryStore) filterLocked(filter Filter) []*models.Celebration {
	var out []*models.Celebration
	for _, c := range s.byID {
		if filter.matches(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
