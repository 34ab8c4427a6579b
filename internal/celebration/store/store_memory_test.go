package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"celebrate/internal/celebration/models"
	"celebrate/pkg/domain"
	"celebrate/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	donor domain.DonorID
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.donor = domain.DonorID(uuid.New())
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestCreateIsIdempotentByKey() {
	first := newCelebration(s.T(), s.donor, "key-1")
	_, err := s.store.Create(s.ctx, first, nil)
	s.Require().NoError(err)

	existing, err := s.store.Create(s.ctx, newCelebration(s.T(), s.donor, "key-1"), nil)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	s.Equal(first.ID, existing.ID)

	all, err := s.store.Find(s.ctx, Filter{DonorID: s.donor})
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *InMemoryStoreSuite) TestCreateCheckSeesHistoryAtomically() {
	capReached := errors.New("cap reached")
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Create(s.ctx, newCelebration(s.T(), s.donor, uuid.NewString()), func(history []*models.Celebration) error {
				if len(history) >= 3 {
					return capReached
				}
				return nil
			})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(3, created)
}

func (s *InMemoryStoreSuite) TestConditionalUpdate() {
	c := newCelebration(s.T(), s.donor, "key-1")
	_, err := s.store.Create(s.ctx, c, nil)
	s.Require().NoError(err)
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	s.Run("wrong expected status", func() {
		next := c.Clone()
		s.Require().NoError(next.ApplyTransition(models.StatusPaused, at, nil))
		s.ErrorIs(s.store.ConditionalUpdate(s.ctx, next, models.StatusPaused), sentinel.ErrConflict)
	})

	s.Run("applies once", func() {
		next := c.Clone()
		s.Require().NoError(next.ApplyTransition(models.StatusPaused, at, nil))
		s.Require().NoError(s.store.ConditionalUpdate(s.ctx, next, models.StatusActive))
	})

	s.Run("ABA is detected by ledger sequence", func() {
		paused, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		resumed := paused.Clone()
		s.Require().NoError(resumed.ApplyTransition(models.StatusActive, at, nil))
		s.Require().NoError(s.store.ConditionalUpdate(s.ctx, resumed, models.StatusPaused))

		stale := c.Clone()
		s.Require().NoError(stale.ApplyDefunct(at, "operator", nil))
		s.ErrorIs(s.store.ConditionalUpdate(s.ctx, stale, models.StatusActive), sentinel.ErrConflict)
	})

	s.Run("unknown id", func() {
		other := newCelebration(s.T(), s.donor, "key-2")
		s.Require().NoError(other.ApplyTransition(models.StatusPaused, at, nil))
		s.ErrorIs(s.store.ConditionalUpdate(s.ctx, other, models.StatusActive), sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestConditionalUpdateCheckedSeesHistoryAtomically() {
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	var paused []*models.Celebration
	for _, key := range []string{"key-1", "key-2", "key-3"} {
		c := newCelebration(s.T(), s.donor, key)
		_, err := s.store.Create(s.ctx, c, nil)
		s.Require().NoError(err)
		next := c.Clone()
		s.Require().NoError(next.ApplyTransition(models.StatusPaused, at, nil))
		s.Require().NoError(s.store.ConditionalUpdate(s.ctx, next, models.StatusActive))
		resume := next.Clone()
		s.Require().NoError(resume.ApplyTransition(models.StatusActive, at, nil))
		paused = append(paused, resume)
	}

	onlyOneActive := errors.New("one active pledge allowed")
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		resumed int
	)
	for _, p := range paused {
		wg.Add(1)
		go func(next *models.Celebration) {
			defer wg.Done()
			err := s.store.ConditionalUpdateChecked(s.ctx, next, models.StatusPaused, func(history []*models.Celebration) error {
				for _, h := range history {
					if h.Status == models.StatusActive {
						return onlyOneActive
					}
				}
				return nil
			})
			if err == nil {
				mu.Lock()
				resumed++
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	s.Equal(1, resumed)

	s.Run("a failed check leaves the row untouched", func() {
		stored, err := s.store.Find(s.ctx, Filter{DonorID: s.donor, Statuses: []models.Status{models.StatusPaused}})
		s.Require().NoError(err)
		s.Len(stored, 2)
	})
}

func (s *InMemoryStoreSuite) TestReturnedRecordsAreCopies() {
	c := newCelebration(s.T(), s.donor, "key-1")
	_, err := s.store.Create(s.ctx, c, nil)
	s.Require().NoError(err)

	loaded, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	loaded.Status = models.StatusDefunct
	loaded.Ledger[0].Metadata = map[string]string{"x": "y"}

	again, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, again.Status)
	s.NoError(again.VerifyLedger())
}

func (s *InMemoryStoreSuite) TestFindAndListBills() {
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	open := newCelebration(s.T(), s.donor, "key-1")
	closed := newCelebration(s.T(), s.donor, "key-2")
	closed.BillID = "s-9-119"
	s.Require().NoError(closed.ApplyDefunct(at, "operator", nil))
	for _, c := range []*models.Celebration{open, closed} {
		_, err := s.store.Create(s.ctx, c, nil)
		s.Require().NoError(err)
	}

	bills, err := s.store.ListBills(s.ctx, models.OpenStatuses)
	s.Require().NoError(err)
	s.Equal([]domain.BillID{"hr-1-119"}, bills)

	expiring, err := s.store.Find(s.ctx, Filter{Statuses: models.OpenStatuses, ExpiresBefore: open.ExpiresAt.Add(time.Second)})
	s.Require().NoError(err)
	s.Len(expiring, 1)

	none, err := s.store.Find(s.ctx, Filter{ExpiresBefore: open.ExpiresAt})
	s.Require().NoError(err)
	s.Empty(none)
}
