// Package profile owns donor profiles and the compliance tier ratchet.
package profile

import (
	"time"

	"celebrate/internal/compliance"
	"celebrate/pkg/domain"
)

// Profile is a donor's editable fields plus the stored tier. Compliance only
// ever moves up.
type Profile struct {
	DonorID    domain.DonorID
	Fields     compliance.Profile
	Compliance compliance.TierName
	UpdatedAt  time.Time
}
