package resolution

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"celebrate/internal/celebration/models"
	"celebrate/internal/resolution/lock"
	"celebrate/internal/resolution/metrics"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
)

// Failure is a celebration the batch could not settle.
type Failure struct {
	CelebrationID domain.CelebrationID
	Code          dErrors.Code
	Message       string
	// Retrying is set when the capture was queued for another attempt.
	Retrying bool
}

// Report summarizes one bill batch. Every open celebration for the bill lands
// in exactly one list.
type Report struct {
	BillID   domain.BillID
	Resolved []domain.CelebrationID
	Defunct  []domain.CelebrationID
	Skipped  []domain.CelebrationID
	Pending  []domain.CelebrationID
	Failed   []Failure
}

// Total is the number of celebrations the batch looked at.
func (r Report) Total() int {
	return len(r.Resolved) + len(r.Defunct) + len(r.Skipped) + len(r.Pending) + len(r.Failed)
}

func (r *Report) record(id domain.CelebrationID, outcome Outcome, err error) {
	switch outcome {
	case OutcomeResolved:
		r.Resolved = append(r.Resolved, id)
	case OutcomeDefunct:
		r.Defunct = append(r.Defunct, id)
	case OutcomeSkipped:
		r.Skipped = append(r.Skipped, id)
	case OutcomePending:
		r.Pending = append(r.Pending, id)
	default:
		r.Failed = append(r.Failed, Failure{
			CelebrationID: id,
			Code:          dErrors.CodeOf(err),
			Message:       errMessage(err),
			Retrying:      outcome == OutcomeRetrying,
		})
	}
}

func (r *Report) sort() {
	byID := func(ids []domain.CelebrationID) {
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	}
	byID(r.Resolved)
	byID(r.Defunct)
	byID(r.Skipped)
	byID(r.Pending)
	sort.Slice(r.Failed, func(i, j int) bool {
		return r.Failed[i].CelebrationID.String() < r.Failed[j].CelebrationID.String()
	})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg := dErrors.MessageOf(err); msg != "" {
		return msg
	}
	return err.Error()
}

// Trigger settles every open celebration for a bill. Work fans out under a
// concurrency limit; each celebration is handled under its own lock so two
// batches for the same bill never capture twice. A failure on one
// celebration never aborts the batch, and re-running a batch is safe.
type Trigger struct {
	lifecycle    Lifecycle
	serial       serializer
	concurrency  int
	staleRetries int
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
}

type TriggerOption func(*Trigger)

func WithLogger(logger *slog.Logger) TriggerOption {
	return func(t *Trigger) { t.logger = logger }
}

func WithMetrics(m *metrics.Metrics) TriggerOption {
	return func(t *Trigger) { t.metrics = m }
}

// WithLocker replaces the process-local lock, e.g. with lock.Redis when
// several instances run triggers.
func WithLocker(l lock.Locker) TriggerOption {
	return func(t *Trigger) { t.serial.locker = l }
}

func WithLockWait(d time.Duration) TriggerOption {
	return func(t *Trigger) {
		if d > 0 {
			t.serial.wait = d
		}
	}
}

func WithConcurrency(n int) TriggerOption {
	return func(t *Trigger) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// WithStaleRetries bounds how often a celebration is re-read after losing a
// conditional update.
func WithStaleRetries(n int) TriggerOption {
	return func(t *Trigger) {
		if n >= 0 {
			t.staleRetries = n
		}
	}
}

func NewTrigger(lifecycle Lifecycle, opts ...TriggerOption) *Trigger {
	t := &Trigger{
		lifecycle:    lifecycle,
		serial:       serializer{locker: lock.NewInMemory(), wait: defaultLockWait},
		concurrency:  8,
		staleRetries: defaultStaleRetries,
		logger:       slog.Default(),
		tracer:       otel.Tracer("celebrate/resolution"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Trigger captures funds for every open celebration on a triggered bill.
func (t *Trigger) Trigger(ctx context.Context, billID domain.BillID) (Report, error) {
	return t.run(ctx, "resolve", billID, t.resolveOne)
}

// Fail releases every open celebration on a failed bill.
func (t *Trigger) Fail(ctx context.Context, billID domain.BillID) (Report, error) {
	return t.run(ctx, "defunct", billID, func(ctx context.Context, id domain.CelebrationID) (Outcome, error) {
		return t.defunctOne(ctx, id, models.ReasonBillFailed)
	})
}

// ResolveOne settles a single celebration under its lock.
func (t *Trigger) ResolveOne(ctx context.Context, id domain.CelebrationID) (Outcome, error) {
	return t.serial.do(ctx, id, func(ctx context.Context) (Outcome, error) {
		return t.resolveOne(ctx, id)
	})
}

// DefunctOne releases a single celebration under its lock.
func (t *Trigger) DefunctOne(ctx context.Context, id domain.CelebrationID, reason string) (Outcome, error) {
	return t.serial.do(ctx, id, func(ctx context.Context) (Outcome, error) {
		return t.defunctOne(ctx, id, reason)
	})
}

// Resolve captures one celebration under its lock and returns the record.
// Operator calls use it so they never interleave with a batch, a retry or a
// defunct on the same celebration.
func (t *Trigger) Resolve(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error) {
	return t.locked(ctx, id, func(ctx context.Context) (*models.Celebration, error) {
		return t.lifecycle.Resolve(ctx, id)
	})
}

// MarkDefunct releases one celebration under its lock and returns the record.
func (t *Trigger) MarkDefunct(ctx context.Context, id domain.CelebrationID, reason string) (*models.Celebration, error) {
	return t.locked(ctx, id, func(ctx context.Context) (*models.Celebration, error) {
		return t.lifecycle.MarkDefunct(ctx, id, reason)
	})
}

func (t *Trigger) locked(ctx context.Context, id domain.CelebrationID, fn func(context.Context) (*models.Celebration, error)) (*models.Celebration, error) {
	var c *models.Celebration
	_, err := t.serial.do(ctx, id, func(ctx context.Context) (Outcome, error) {
		var err error
		c, err = fn(ctx)
		return "", err
	})
	return c, err
}

func (t *Trigger) run(ctx context.Context, operation string, billID domain.BillID, op func(context.Context, domain.CelebrationID) (Outcome, error)) (Report, error) {
	ctx, span := t.tracer.Start(ctx, "resolution."+operation)
	defer span.End()
	span.SetAttributes(attribute.String("bill_id", billID.String()))

	report := Report{BillID: billID}
	open, err := t.lifecycle.ListOpenByBill(ctx, billID)
	if err != nil {
		span.RecordError(err)
		return report, err
	}

	start := time.Now()
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for _, c := range open {
		id := c.ID
		g.Go(func() error {
			outcome, err := t.serial.do(ctx, id, func(ctx context.Context) (Outcome, error) {
				return op(ctx, id)
			})
			if err != nil && outcome != OutcomeRetrying {
				t.logger.WarnContext(ctx, "celebration not settled",
					"operation", operation,
					"bill_id", billID,
					"celebration_id", id,
					"outcome", outcome,
					"error", err,
				)
			}
			if t.metrics != nil {
				t.metrics.IncOutcome(operation, string(outcome))
			}
			mu.Lock()
			report.record(id, outcome, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	report.sort()

	if t.metrics != nil {
		t.metrics.ObserveBatch(time.Since(start).Seconds())
	}
	span.SetAttributes(
		attribute.Int("celebrations", report.Total()),
		attribute.Int("failed", len(report.Failed)),
	)
	t.logger.InfoContext(ctx, "bill batch finished",
		"operation", operation,
		"bill_id", billID,
		"resolved", len(report.Resolved),
		"defunct", len(report.Defunct),
		"skipped", len(report.Skipped),
		"pending", len(report.Pending),
		"failed", len(report.Failed),
	)
	return report, nil
}

func (t *Trigger) resolveOne(ctx context.Context, id domain.CelebrationID) (Outcome, error) {
	for attempt := 0; ; attempt++ {
		c, err := t.lifecycle.Get(ctx, id)
		if err != nil {
			return OutcomeFailed, err
		}
		if !c.IsOpen() {
			return OutcomeSkipped, nil
		}
		_, err = t.lifecycle.Resolve(ctx, id)
		switch {
		case err == nil:
			return OutcomeResolved, nil
		case dErrors.HasCode(err, dErrors.CodeStaleState) && attempt < t.staleRetries:
			continue
		case dErrors.HasCode(err, dErrors.CodeCapturePending):
			return OutcomePending, nil
		case dErrors.HasCode(err, dErrors.CodePaymentCaptureFailed):
			return OutcomeRetrying, err
		case dErrors.HasCode(err, dErrors.CodeInvalidTransition):
			// Closed between the read and the capture attempt.
			return OutcomeSkipped, nil
		default:
			return OutcomeFailed, err
		}
	}
}

func (t *Trigger) defunctOne(ctx context.Context, id domain.CelebrationID, reason string) (Outcome, error) {
	for attempt := 0; ; attempt++ {
		c, err := t.lifecycle.Get(ctx, id)
		if err != nil {
			return OutcomeFailed, err
		}
		if !c.IsOpen() {
			return OutcomeSkipped, nil
		}
		_, err = t.lifecycle.MarkDefunct(ctx, id, reason)
		switch {
		case err == nil:
			return OutcomeDefunct, nil
		case dErrors.HasCode(err, dErrors.CodeStaleState) && attempt < t.staleRetries:
			continue
		case dErrors.HasCode(err, dErrors.CodeInvalidTransition):
			return OutcomeSkipped, nil
		default:
			return OutcomeFailed, err
		}
	}
}
