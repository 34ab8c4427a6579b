package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celebrate/pkg/domain"
	audit "celebrate/pkg/platform/audit"
	"celebrate/pkg/platform/audit/store/memory"
	"celebrate/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("outbox down") }
func (failingStore) ListByCelebration(context.Context, domain.CelebrationID) ([]audit.Event, error) {
	return nil, nil
}

func TestEmitFillsFromContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store)

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = requestcontext.WithActor(ctx, "operator")

	id := domain.NewCelebrationID()
	require.NoError(t, pub.Emit(ctx, audit.Event{
		CelebrationID: id,
		Action:        string(audit.EventCelebrationResolved),
	}))

	events, err := store.ListByCelebration(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, now, events[0].Timestamp)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, "operator", events[0].ActorID)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.NotEqual(t, [16]byte{}, [16]byte(events[0].ID))
}

func TestEmitValidation(t *testing.T) {
	pub := New(memory.NewInMemoryStore())
	err := pub.Emit(context.Background(), audit.Event{Action: "x"})
	require.Error(t, err)

	err = pub.Emit(context.Background(), audit.Event{CelebrationID: domain.NewCelebrationID()})
	require.Error(t, err)
}

func TestEmitFailsClosed(t *testing.T) {
	pub := New(failingStore{})
	err := pub.Emit(context.Background(), audit.Event{
		CelebrationID: domain.NewCelebrationID(),
		Action:        string(audit.EventCelebrationCreated),
	})
	require.ErrorContains(t, err, "compliance audit persistence failed")
}
