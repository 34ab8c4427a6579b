package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	auditpg "celebrate/pkg/platform/audit/store/postgres"
)

type fakeOutbox struct {
	entries []auditpg.OutboxEntry
	marked  []uuid.UUID
}

func (f *fakeOutbox) FetchUnpublished(_ context.Context, limit int) ([]auditpg.OutboxEntry, error) {
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, ids []uuid.UUID, _ time.Time) error {
	f.marked = append(f.marked, ids...)
	return nil
}

type fakeProducer struct {
	failKey string
	got     []*kgo.Record
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, len(rs))
	for i, r := range rs {
		p.got = append(p.got, r)
		results[i] = kgo.ProduceResult{Record: r}
		if string(r.Key) == p.failKey {
			results[i].Err = errors.New("not leader")
		}
	}
	return results
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRelayOncePublishesAndMarks(t *testing.T) {
	outbox := &fakeOutbox{entries: []auditpg.OutboxEntry{
		{ID: uuid.New(), AggregateID: "c-1", EventType: "celebration_created", Payload: []byte(`{}`)},
		{ID: uuid.New(), AggregateID: "c-2", EventType: "celebration_resolved", Payload: []byte(`{}`)},
	}}
	producer := &fakeProducer{}
	relay := NewRelay(outbox, producer, "celebration.events", WithLogger(quietLogger()))

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, outbox.marked, 2)
	require.Len(t, producer.got, 2)
	assert.Equal(t, "c-1", string(producer.got[0].Key))
	assert.Equal(t, "celebration.events", producer.got[0].Topic)
}

func TestRelayOnceLeavesFailedEntries(t *testing.T) {
	failed := uuid.New()
	ok := uuid.New()
	outbox := &fakeOutbox{entries: []auditpg.OutboxEntry{
		{ID: failed, AggregateID: "c-1", EventType: "celebration_created"},
		{ID: ok, AggregateID: "c-2", EventType: "celebration_created"},
	}}
	relay := NewRelay(outbox, &fakeProducer{failKey: "c-1"}, "t", WithLogger(quietLogger()))

	n, err := relay.RelayOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{ok}, outbox.marked)
}

func TestRelayOnceEmpty(t *testing.T) {
	relay := NewRelay(&fakeOutbox{}, &fakeProducer{}, "t", WithBatchSize(10))
	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
