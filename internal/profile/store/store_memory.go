package store

import (
	"context"
	"sync"

	"celebrate/internal/compliance"
	"celebrate/internal/profile"
	"celebrate/pkg/domain"
	"celebrate/pkg/platform/sentinel"
)

// InMemoryStore keeps profiles in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[domain.DonorID]profile.Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[domain.DonorID]profile.Profile)}
}

func (s *InMemoryStore) FindByDonor(_ context.Context, donorID domain.DonorID) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[donorID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

// SaveFields upserts the editable fields and keeps the stored tier.
func (s *InMemoryStore) SaveFields(_ context.Context, p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.profiles[p.DonorID]
	next := *p
	if ok {
		next.Compliance = compliance.Ratchet(existing.Compliance, p.Compliance)
	} else if !next.Compliance.IsValid() {
		next.Compliance = compliance.TierGuest
	}
	s.profiles[p.DonorID] = next
	return nil
}

func (s *InMemoryStore) RaiseCompliance(_ context.Context, donorID domain.DonorID, tier compliance.TierName) (compliance.TierName, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[donorID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	p.Compliance = compliance.Ratchet(p.Compliance, tier)
	s.profiles[donorID] = p
	return p.Compliance, nil
}
