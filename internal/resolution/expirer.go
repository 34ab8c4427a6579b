package resolution

import (
	"context"
	"log/slog"
	"time"

	"celebrate/internal/celebration/models"
	"celebrate/internal/resolution/metrics"
	"celebrate/pkg/requestcontext"
)

// Expirer releases celebrations whose escrow window lapsed before their bill
// resolved.
type Expirer struct {
	lifecycle Lifecycle
	trigger   *Trigger
	batchSize int
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type ExpirerOption func(*Expirer)

func WithExpirerLogger(logger *slog.Logger) ExpirerOption {
	return func(e *Expirer) { e.logger = logger }
}

func WithExpirerMetrics(m *metrics.Metrics) ExpirerOption {
	return func(e *Expirer) { e.metrics = m }
}

func WithExpirerInterval(d time.Duration) ExpirerOption {
	return func(e *Expirer) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithExpirerBatchSize(n int) ExpirerOption {
	return func(e *Expirer) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func NewExpirer(lifecycle Lifecycle, trigger *Trigger, opts ...ExpirerOption) *Expirer {
	e := &Expirer{
		lifecycle: lifecycle,
		trigger:   trigger,
		batchSize: 200,
		interval:  time.Hour,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *Expirer) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		if _, err := e.RunOnce(ctx); err != nil {
			e.logger.WarnContext(ctx, "expiry pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce marks one batch of lapsed celebrations defunct and returns how many
// it released. A celebration that fails stays open and is picked up on the
// next pass.
func (e *Expirer) RunOnce(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	ctx = requestcontext.WithTime(requestcontext.WithActor(ctx, "expirer"), now)

	lapsed, err := e.lifecycle.ListExpired(ctx, now, e.batchSize)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, c := range lapsed {
		outcome, err := e.trigger.DefunctOne(ctx, c.ID, models.ReasonExpired)
		if err != nil {
			e.logger.WarnContext(ctx, "expired celebration not released",
				"celebration_id", c.ID,
				"expires_at", c.ExpiresAt,
				"error", err,
			)
			continue
		}
		if outcome == OutcomeDefunct {
			released++
		}
	}
	if e.metrics != nil {
		e.metrics.AddExpired(released)
	}
	if released > 0 {
		e.logger.InfoContext(ctx, "expired celebrations released", "count", released)
	}
	return released, nil
}
