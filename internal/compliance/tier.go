package compliance

import (
	"fmt"

	"celebrate/pkg/domain"
)

// TierName is a regulatory classification.
type TierName string

const (
	TierGuest     TierName = "guest"
	TierCompliant TierName = "compliant"
)

// Rank orders tiers for the ratchet. Unknown names rank lowest.
func (t TierName) Rank() int {
	switch t {
	case TierCompliant:
		return 2
	case TierGuest:
		return 1
	default:
		return 0
	}
}

func (t TierName) IsValid() bool { return t.Rank() > 0 }

func (t TierName) String() string { return string(t) }

// ParseTierName parses a stored tier value.
func ParseTierName(s string) (TierName, error) {
	t := TierName(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown compliance tier %q", s)
	}
	return t, nil
}

// Ratchet returns whichever of stored and computed ranks higher. A stored
// compliant tier is never demoted by a later guest classification.
func Ratchet(stored, computed TierName) TierName {
	if stored.Rank() >= computed.Rank() {
		return stored
	}
	return computed
}

// ResetPolicy says when a tier's cumulative limit starts over.
type ResetPolicy string

const (
	ResetAnnual        ResetPolicy = "annual"
	ResetElectionCycle ResetPolicy = "election_cycle"
)

// Tier carries the limits for a TierName. Exactly one of AnnualCap and
// PerElection is set, matching Reset.
type Tier struct {
	Name        TierName
	PerDonation domain.Money
	AnnualCap   domain.Money
	PerElection domain.Money
	Reset       ResetPolicy
}

// CumulativeLimit is the cap that history counts against.
func (t Tier) CumulativeLimit() domain.Money {
	if t.Reset == ResetAnnual {
		return t.AnnualCap
	}
	return t.PerElection
}

// Tiers is the configured limit table.
type Tiers struct {
	Guest     Tier
	Compliant Tier
}

// DefaultTiers returns $50 guest (per donation and per year) and $3,500
// compliant (per donation and per election).
func DefaultTiers() Tiers {
	return NewTiers(domain.Dollars(50), domain.Dollars(50), domain.Dollars(3500), domain.Dollars(3500))
}

func NewTiers(guestPerDonation, guestAnnualCap, compliantPerDonation, compliantPerElection domain.Money) Tiers {
	return Tiers{
		Guest: Tier{
			Name:        TierGuest,
			PerDonation: guestPerDonation,
			AnnualCap:   guestAnnualCap,
			Reset:       ResetAnnual,
		},
		Compliant: Tier{
			Name:        TierCompliant,
			PerDonation: compliantPerDonation,
			PerElection: compliantPerElection,
			Reset:       ResetElectionCycle,
		},
	}
}

// For returns the limits for name. Unknown names get guest limits.
func (t Tiers) For(name TierName) Tier {
	if name == TierCompliant {
		return t.Compliant
	}
	return t.Guest
}
