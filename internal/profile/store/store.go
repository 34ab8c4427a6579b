package store

import (
	"context"

	"celebrate/internal/compliance"
	"celebrate/internal/profile"
	"celebrate/pkg/domain"
)

// Store persists donor profiles. RaiseCompliance must never lower the stored
// tier; it returns the tier that is stored after the call.
type Store interface {
	FindByDonor(ctx context.Context, donorID domain.DonorID) (*profile.Profile, error)
	SaveFields(ctx context.Context, p *profile.Profile) error
	RaiseCompliance(ctx context.Context, donorID domain.DonorID, tier compliance.TierName) (compliance.TierName, error)
}
