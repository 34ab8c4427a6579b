// Package store persists celebrations. Every status change is a conditional
// write guarded by the status and ledger tail the caller read.
package store

import (
	"context"
	"time"

	"celebrate/internal/celebration/models"
	"celebrate/pkg/domain"
)

// CreateCheck re-validates a pledge against the donor's full history inside
// the atomic section that guards the write: key uniqueness for Create, the
// status guard for ConditionalUpdateChecked.
type CreateCheck func(history []*models.Celebration) error

// Filter selects celebrations. Zero fields do not constrain.
type Filter struct {
	DonorID         domain.DonorID
	BillID          domain.BillID
	AuthorizationID string
	Statuses        []models.Status
	ExpiresBefore   time.Time
	Limit           int
}

// Store is the persistence port for celebrations.
//
// Create returns sentinel.ErrAlreadyUsed when the idempotency key is taken;
// the existing record is returned alongside when the store can read it.
// ConditionalUpdate expects c to carry exactly one ledger entry more than the
// stored row and returns sentinel.ErrConflict when the row moved on.
// ConditionalUpdateChecked additionally runs check over the donor's history
// under the same per-donor serialization Create uses.
type Store interface {
	Create(ctx context.Context, c *models.Celebration, check CreateCheck) (*models.Celebration, error)
	FindByID(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error)
	FindByIdempotencyKey(ctx context.Context, key domain.IdempotencyKey) (*models.Celebration, error)
	ConditionalUpdate(ctx context.Context, c *models.Celebration, expected models.Status) error
	ConditionalUpdateChecked(ctx context.Context, c *models.Celebration, expected models.Status, check CreateCheck) error
	Find(ctx context.Context, filter Filter) ([]*models.Celebration, error)
	ListBills(ctx context.Context, statuses []models.Status) ([]domain.BillID, error)
}

func (f Filter) matches(c *models.Celebration) bool {
	if !f.DonorID.IsNil() && c.DonorID != f.DonorID {
		return false
	}
	if f.BillID != "" && c.BillID != f.BillID {
		return false
	}
	if f.AuthorizationID != "" && c.AuthorizationID != f.AuthorizationID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, c.Status) {
		return false
	}
	if !f.ExpiresBefore.IsZero() && (c.ExpiresAt.IsZero() || !c.ExpiresAt.Before(f.ExpiresBefore)) {
		return false
	}
	return true
}

func containsStatus(statuses []models.Status, s models.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
