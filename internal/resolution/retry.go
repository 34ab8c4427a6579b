package resolution

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"celebrate/internal/resolution/metrics"
	"celebrate/internal/resolution/queue"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
	"celebrate/pkg/requestcontext"
)

// RetryScheduler queues a celebration whose capture did not settle. It is
// the hook the celebration service calls after a failed or pending capture.
type RetryScheduler struct {
	queue queue.Queue
	delay func(attempt int) time.Duration
}

func NewRetryScheduler(q queue.Queue, policy *RetryPolicy) *RetryScheduler {
	return &RetryScheduler{queue: q, delay: policy.Delay}
}

func (s *RetryScheduler) Schedule(ctx context.Context, id domain.CelebrationID, reason string) error {
	return s.queue.Schedule(ctx, queue.Entry{
		CelebrationID: id,
		Reason:        reason,
		DueAt:         requestcontext.Now(ctx).Add(s.delay(0)),
	})
}

// RetryPolicy spaces capture retries with exponential backoff and gives up
// after MaxAttempts.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
	// Jitter is the backoff randomization factor; 0 makes delays exact.
	Jitter float64
}

// DefaultRetryPolicy retries for roughly a day before leaving the celebration
// to an operator.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		InitialInterval: time.Minute,
		MaxInterval:     4 * time.Hour,
		MaxAttempts:     12,
		Jitter:          0.2,
	}
}

// Delay returns the wait before the given attempt (0-based).
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for range attempt {
		d = b.NextBackOff()
	}
	return d
}

// RetryWorker drains the capture retry queue. An entry stays queued while its
// capture is retried, so the service's own Schedule call is a no-op and the
// attempt count survives.
type RetryWorker struct {
	queue     queue.Queue
	trigger   *Trigger
	policy    *RetryPolicy
	batchSize int
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type RetryOption func(*RetryWorker)

func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(w *RetryWorker) { w.logger = logger }
}

func WithRetryMetrics(m *metrics.Metrics) RetryOption {
	return func(w *RetryWorker) { w.metrics = m }
}

func WithRetryInterval(d time.Duration) RetryOption {
	return func(w *RetryWorker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithRetryBatchSize(n int) RetryOption {
	return func(w *RetryWorker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func NewRetryWorker(q queue.Queue, trigger *Trigger, policy *RetryPolicy, opts ...RetryOption) *RetryWorker {
	w := &RetryWorker{
		queue:     q,
		trigger:   trigger,
		policy:    policy,
		batchSize: 50,
		interval:  15 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run drains the queue until ctx is cancelled.
func (w *RetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.WarnContext(ctx, "capture retry pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce retries every due entry and returns how many it attempted.
func (w *RetryWorker) RunOnce(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	due, err := w.queue.Due(ctx, now, w.batchSize)
	if err != nil {
		return 0, err
	}
	ctx = requestcontext.WithActor(ctx, "retry-worker")
	for _, e := range due {
		w.retry(ctx, e, now)
	}
	if w.metrics != nil {
		if n, err := w.queue.Len(ctx); err == nil {
			w.metrics.SetRetryQueue(n)
		}
	}
	return len(due), nil
}

func (w *RetryWorker) retry(ctx context.Context, e queue.Entry, now time.Time) {
	outcome, err := w.trigger.ResolveOne(ctx, e.CelebrationID)
	if w.metrics != nil {
		w.metrics.IncRetry(string(outcome))
	}

	switch outcome {
	case OutcomeResolved, OutcomeSkipped:
		w.remove(ctx, e)
		return
	case OutcomeFailed:
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			w.remove(ctx, e)
			return
		}
	}

	e.Attempt++
	if e.Attempt >= w.policy.MaxAttempts {
		w.logger.ErrorContext(ctx, "capture retries exhausted",
			"celebration_id", e.CelebrationID,
			"attempts", e.Attempt,
			"reason", e.Reason,
			"error", err,
		)
		if w.metrics != nil {
			w.metrics.IncRetry("exhausted")
		}
		w.remove(ctx, e)
		return
	}
	if err != nil {
		e.Reason = errMessage(err)
	}
	e.DueAt = now.Add(w.policy.Delay(e.Attempt))
	if rerr := w.queue.Reschedule(ctx, e); rerr != nil {
		w.logger.WarnContext(ctx, "capture retry not rescheduled",
			"celebration_id", e.CelebrationID,
			"error", rerr,
		)
	}
}

func (w *RetryWorker) remove(ctx context.Context, e queue.Entry) {
	if err := w.queue.Remove(ctx, e.CelebrationID); err != nil {
		w.logger.WarnContext(ctx, "capture retry not removed",
			"celebration_id", e.CelebrationID,
			"error", err,
		)
	}
}
