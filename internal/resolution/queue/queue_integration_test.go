//go:build integration

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celebrate/pkg/testutil/containers"
)

func TestRedisQueue(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	q := NewRedis(rc.Client, WithKey("test:capture_retry"))
	now := time.Now().UTC().Truncate(time.Millisecond)
	a, b := newID(), newID()

	require.NoError(t, q.Schedule(ctx, Entry{CelebrationID: a, Reason: "declined", DueAt: now.Add(-time.Second)}))
	require.NoError(t, q.Schedule(ctx, Entry{CelebrationID: a, Reason: "ignored", DueAt: now.Add(-time.Hour)}))
	require.NoError(t, q.Schedule(ctx, Entry{CelebrationID: b, DueAt: now.Add(time.Hour)}))

	due, err := q.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, a, due[0].CelebrationID)
	assert.Equal(t, "declined", due[0].Reason)

	due[0].Attempt++
	due[0].DueAt = now.Add(2 * time.Hour)
	require.NoError(t, q.Reschedule(ctx, due[0]))
	due, err = q.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = q.Due(ctx, now.Add(3*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, b, due[0].CelebrationID)
	assert.Equal(t, 1, due[1].Attempt)

	require.NoError(t, q.Remove(ctx, a))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
