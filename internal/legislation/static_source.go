package legislation

import (
	"context"
	"sync"

	"celebrate/pkg/domain"
)

// StaticSource serves statuses set in process. Unknown bills are pending.
type StaticSource struct {
	mu       sync.RWMutex
	statuses map[domain.BillID]Status
}

func NewStaticSource() *StaticSource {
	return &StaticSource{statuses: make(map[domain.BillID]Status)}
}

func (s *StaticSource) Set(billID domain.BillID, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[billID] = status
}

func (s *StaticSource) Status(_ context.Context, billID domain.BillID) (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.statuses[billID]; ok {
		return st, nil
	}
	return StatusPending, nil
}
