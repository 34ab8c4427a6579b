// Package resolution drives open celebrations to their terminal state: bill
// triggers capture escrowed funds, failed bills and lapsed escrow windows
// release them, and unsettled captures are retried.
package resolution

import (
	"context"
	"fmt"
	"time"

	"celebrate/internal/celebration/models"
	"celebrate/internal/resolution/lock"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
)

// Lifecycle is the celebration behaviour the resolution jobs drive.
type Lifecycle interface {
	Get(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error)
	ListOpenByBill(ctx context.Context, billID domain.BillID) ([]*models.Celebration, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Celebration, error)
	OpenBills(ctx context.Context) ([]domain.BillID, error)
	Resolve(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error)
	MarkDefunct(ctx context.Context, id domain.CelebrationID, reason string) (*models.Celebration, error)
}

// Outcome is what happened to one celebration in a job.
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomeDefunct  Outcome = "defunct"
	OutcomeSkipped  Outcome = "skipped"
	OutcomePending  Outcome = "capture_pending"
	OutcomeRetrying Outcome = "capture_failed"
	OutcomeFailed   Outcome = "failed"
)

const (
	defaultLockWait     = 30 * time.Second
	defaultStaleRetries = 3
)

// serializer runs fn while holding the celebration's lock.
type serializer struct {
	locker lock.Locker
	wait   time.Duration
}

func (s serializer) do(ctx context.Context, id domain.CelebrationID, fn func(context.Context) (Outcome, error)) (Outcome, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.wait)
	release, err := s.locker.Acquire(waitCtx, "celebration:"+id.String())
	cancel()
	if err != nil {
		return OutcomeFailed, dErrors.Wrap(fmt.Errorf("serialize celebration %s: %w", id, err), dErrors.CodeUnavailable, "celebration is busy")
	}
	defer release()
	return fn(ctx)
}
