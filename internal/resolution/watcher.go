package resolution

import (
	"context"
	"log/slog"
	"time"

	"celebrate/internal/legislation"
	"celebrate/internal/resolution/metrics"
	"celebrate/pkg/domain"
	"celebrate/pkg/requestcontext"
)

// Watcher polls the legislative source for every bill with open
// celebrations and settles the bills that reached a final status.
type Watcher struct {
	lifecycle Lifecycle
	source    legislation.Source
	trigger   *Trigger
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type WatcherOption func(*Watcher)

func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

func WithWatcherMetrics(m *metrics.Metrics) WatcherOption {
	return func(w *Watcher) { w.metrics = m }
}

func WithWatcherInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

func NewWatcher(lifecycle Lifecycle, source legislation.Source, trigger *Trigger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		lifecycle: lifecycle,
		source:    source,
		trigger:   trigger,
		interval:  5 * time.Minute,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// PollResult lists what one pass did per bill.
type PollResult struct {
	Triggered []Report
	Failed    []Report
	Pending   []domain.BillID
	Errors    map[domain.BillID]error
}

func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.PollOnce(ctx); err != nil {
			w.logger.WarnContext(ctx, "bill poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce checks every bill once. A lookup or batch error for one bill is
// recorded and the pass moves on.
func (w *Watcher) PollOnce(ctx context.Context) (PollResult, error) {
	result := PollResult{Errors: make(map[domain.BillID]error)}
	bills, err := w.lifecycle.OpenBills(ctx)
	if err != nil {
		return result, err
	}
	ctx = requestcontext.WithActor(ctx, "bill-watcher")

	for _, billID := range bills {
		status, err := w.source.Status(ctx, billID)
		if err != nil {
			w.countPoll("error")
			w.logger.WarnContext(ctx, "bill status lookup failed", "bill_id", billID, "error", err)
			result.Errors[billID] = err
			continue
		}
		w.countPoll(string(status))

		switch status {
		case legislation.StatusTriggered:
			report, err := w.trigger.Trigger(ctx, billID)
			if err != nil {
				result.Errors[billID] = err
				continue
			}
			result.Triggered = append(result.Triggered, report)
		case legislation.StatusFailed:
			report, err := w.trigger.Fail(ctx, billID)
			if err != nil {
				result.Errors[billID] = err
				continue
			}
			result.Failed = append(result.Failed, report)
		default:
			result.Pending = append(result.Pending, billID)
		}
	}
	return result, nil
}

func (w *Watcher) countPoll(status string) {
	if w.metrics != nil {
		w.metrics.IncBillPolled(status)
	}
}
