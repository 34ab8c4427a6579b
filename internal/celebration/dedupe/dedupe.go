// Package dedupe records provider webhook event ids so a redelivered
// notification is applied once.
package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"celebrate/pkg/platform/sentinel"
	txcontext "celebrate/pkg/platform/tx"
)

// Deduper claims an event id. Claim returns sentinel.ErrAlreadyUsed when the
// id was claimed before.
type Deduper interface {
	Claim(ctx context.Context, eventID string, at time.Time) error
}

// InMemory is a process-local Deduper.
type InMemory struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{seen: make(map[string]time.Time)}
}

func (d *InMemory) Claim(_ context.Context, eventID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[eventID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	d.seen[eventID] = at
	return nil
}

// Postgres claims ids in processed_webhooks. Inside an ambient transaction the
// claim commits or rolls back with the state change it guards.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (d *Postgres) Claim(ctx context.Context, eventID string, at time.Time) error {
	res, err := txcontext.Executor(ctx, d.db).ExecContext(ctx,
		`INSERT INTO processed_webhooks (event_id, processed_at) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
		eventID, at)
	if err != nil {
		return fmt.Errorf("claim webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim webhook event: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

const redisKeyPrefix = "celebrate:webhook:"

// Redis claims ids with SET NX and forgets them after ttl.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (d *Redis) Claim(ctx context.Context, eventID string, at time.Time) error {
	ok, err := d.client.SetNX(ctx, redisKeyPrefix+eventID, at.UTC().Format(time.RFC3339Nano), d.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: claim webhook event: %v", sentinel.ErrUnavailable, err)
	}
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}
