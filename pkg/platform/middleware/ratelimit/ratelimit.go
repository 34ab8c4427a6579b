// Package ratelimit throttles donor-facing requests per client IP.
package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"celebrate/pkg/platform/httputil"
	"celebrate/pkg/requestcontext"
)

const (
	defaultClients = 10_000
	idleTTL        = 10 * time.Minute
)

// Middleware holds one token bucket per client IP. Buckets for idle clients
// age out of the LRU, so memory stays bounded under address churn.
type Middleware struct {
	perSecond rate.Limit
	burst     int
	logger    *slog.Logger
	disabled  bool

	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
}

type Option func(*Middleware)

// WithDisabled turns the limiter into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) { m.disabled = disabled }
}

// WithMaxClients bounds the number of tracked client buckets.
func WithMaxClients(n int) Option {
	return func(m *Middleware) {
		if n > 0 {
			m.buckets = expirable.NewLRU[string, *rate.Limiter](n, nil, idleTTL)
		}
	}
}

func New(perSecond float64, burst int, logger *slog.Logger, opts ...Option) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Middleware{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		logger:    logger,
		buckets:   expirable.NewLRU[string, *rate.Limiter](defaultClients, nil, idleTTL),
	}
	for _, opt := range opts {
		opt(m)
	}
	if perSecond <= 0 || burst <= 0 {
		m.disabled = true
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

func (m *Middleware) limiter(ip string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.buckets.Get(ip); ok {
		return l
	}
	l := rate.NewLimiter(m.perSecond, m.burst)
	m.buckets.Add(ip, l)
	return l
}

// Handler rejects requests over the client's budget with 429.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		l := m.limiter(ip)

		now := time.Now()
		res := l.ReserveN(now, 1)
		delay := res.DelayFrom(now)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.burst))
		if !res.OK() || delay > 0 {
			res.CancelAt(now)
			retryAfter := int(math.Ceil(delay.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"request_id", requestcontext.RequestID(ctx),
				"path", r.URL.Path,
			)
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests from this address. Please try again later.",
				"retry_after": retryAfter,
			})
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(l.TokensAt(now))))
		next.ServeHTTP(w, r)
	})
}
