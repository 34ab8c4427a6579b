package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"celebrate/pkg/domain"
	"celebrate/pkg/platform/sentinel"
)

const (
	defaultRedisKey = "celebrate:capture_retry"
	entrySuffix     = ":entries"
)

// scheduleScript adds the entry only when the id is not queued yet.
// KEYS[1] = due-time sorted set, KEYS[2] = entry hash
// ARGV[1] = score (unix ms), ARGV[2] = member, ARGV[3] = entry json
var scheduleScript = redis.NewScript(`
if redis.call("ZADD", KEYS[1], "NX", ARGV[1], ARGV[2]) == 1 then
  redis.call("HSET", KEYS[2], ARGV[2], ARGV[3])
  return 1
end
return 0
`)

// Redis stores due times in a sorted set and entry bodies in a hash so every
// instance drains the same queue.
type Redis struct {
	client  *redis.Client
	zsetKey string
	hashKey string
}

type RedisOption func(*Redis)

// WithKey overrides the key prefix, e.g. to isolate environments.
func WithKey(key string) RedisOption {
	return func(q *Redis) {
		q.zsetKey = key
		q.hashKey = key + entrySuffix
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	q := &Redis{
		client:  client,
		zsetKey: defaultRedisKey,
		hashKey: defaultRedisKey + entrySuffix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

func (q *Redis) Schedule(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode retry entry: %w", err)
	}
	err = scheduleScript.Run(ctx, q.client, []string{q.zsetKey, q.hashKey},
		e.DueAt.UnixMilli(), e.CelebrationID.String(), body).Err()
	if err != nil {
		return unavailable("schedule capture retry", err)
	}
	return nil
}

func (q *Redis) Due(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	rangeBy := &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now.UnixMilli())}
	if limit > 0 {
		rangeBy.Count = int64(limit)
	}
	ids, err := q.client.ZRangeByScore(ctx, q.zsetKey, rangeBy).Result()
	if err != nil {
		return nil, unavailable("list due capture retries", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	bodies, err := q.client.HMGet(ctx, q.hashKey, ids...).Result()
	if err != nil {
		return nil, unavailable("load capture retries", err)
	}
	out := make([]Entry, 0, len(ids))
	for i, raw := range bodies {
		s, ok := raw.(string)
		if !ok {
			// Removed between the two reads.
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("decode retry entry %s: %w", ids[i], err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (q *Redis) Reschedule(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode retry entry: %w", err)
	}
	member := e.CelebrationID.String()
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, q.zsetKey, redis.Z{Score: float64(e.DueAt.UnixMilli()), Member: member})
		p.HSet(ctx, q.hashKey, member, body)
		return nil
	})
	if err != nil {
		return unavailable("reschedule capture retry", err)
	}
	return nil
}

func (q *Redis) Remove(ctx context.Context, id domain.CelebrationID) error {
	member := id.String()
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.zsetKey, member)
		p.HDel(ctx, q.hashKey, member)
		return nil
	})
	if err != nil {
		return unavailable("remove capture retry", err)
	}
	return nil
}

func (q *Redis) Len(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.zsetKey).Result()
	if err != nil {
		return 0, unavailable("count capture retries", err)
	}
	return int(n), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", sentinel.ErrUnavailable, op, err)
}
