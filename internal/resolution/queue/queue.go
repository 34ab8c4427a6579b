// Package queue holds celebrations whose capture did not settle until a
// worker retries them.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"celebrate/pkg/domain"
)

// Entry is one pending capture retry.
type Entry struct {
	CelebrationID domain.CelebrationID `json:"celebration_id"`
	Reason        string               `json:"reason"`
	Attempt       int                  `json:"attempt"`
	DueAt         time.Time            `json:"due_at"`
}

// Queue is keyed by celebration id. Schedule leaves an existing entry in
// place so a retry already in flight keeps its attempt count.
type Queue interface {
	Schedule(ctx context.Context, e Entry) error
	Due(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	Reschedule(ctx context.Context, e Entry) error
	Remove(ctx context.Context, id domain.CelebrationID) error
	Len(ctx context.Context) (int, error)
}

// InMemory is a process-local Queue.
type InMemory struct {
	mu      sync.Mutex
	entries map[domain.CelebrationID]Entry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[domain.CelebrationID]Entry)}
}

func (q *InMemory) Schedule(_ context.Context, e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[e.CelebrationID]; !ok {
		q.entries[e.CelebrationID] = e
	}
	return nil
}

func (q *InMemory) Due(_ context.Context, now time.Time, limit int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []Entry
	for _, e := range q.entries {
		if !e.DueAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].DueAt.Equal(due[j].DueAt) {
			return due[i].CelebrationID.String() < due[j].CelebrationID.String()
		}
		return due[i].DueAt.Before(due[j].DueAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (q *InMemory) Reschedule(_ context.Context, e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[e.CelebrationID] = e
	return nil
}

func (q *InMemory) Remove(_ context.Context, id domain.CelebrationID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, id)
	return nil
}

func (q *InMemory) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}
