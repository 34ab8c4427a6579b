package limits

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"celebrate/internal/celebration/models"
	"celebrate/internal/compliance"
	"celebrate/internal/cycle"
	"celebrate/pkg/domain"
)

func newPropertyCalculator() (*Calculator, time.Time) {
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	cal, _ := cycle.ParseCalendar([]byte("elections:\n  - {state: NY, type: primary, date: 2026-06-23}\n"), time.UTC)
	resolver := cycle.NewResolver(time.UTC, cycle.WithCalendar(cal), cycle.WithClock(func() time.Time { return now }))
	return NewCalculator(compliance.DefaultTiers(), resolver), now
}

// Accepting only pledges the calculator allows keeps every window under its cap.
func TestLimitProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	calc, now := newPropertyCalculator()
	tiers := calc.Tiers()

	properties.Property("guest annual sum never exceeds cap", prop.ForAll(
		func(amounts []int64, pauses []bool) bool {
			var history []*models.Celebration
			for i, cents := range amounts {
				at := now.Add(time.Duration(i) * time.Hour)
				res := calc.Calculate(Request{Tier: compliance.TierGuest, History: history, Amount: domain.Money(cents), At: at})
				if res.Exceeds {
					if res.RemainingLimit > tiers.Guest.PerDonation {
						return false
					}
					continue
				}
				status := models.StatusActive
				if i < len(pauses) && pauses[i] {
					status = models.StatusPaused
				}
				history = append(history, &models.Celebration{Amount: domain.Money(cents), Status: status, CreatedAt: at})
			}
			var sum domain.Money
			for _, p := range history {
				if p.Status != models.StatusPaused {
					sum += p.Amount
				}
				if p.Amount > tiers.Guest.PerDonation {
					return false
				}
			}
			return sum <= tiers.Guest.AnnualCap
		},
		gen.SliceOf(gen.Int64Range(1, 8000)),
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("compliant bucket sum never exceeds per-election limit", prop.ForAll(
		func(amounts []int64, offsets []int) bool {
			var history []*models.Celebration
			for i, cents := range amounts {
				at := now
				if i < len(offsets) {
					at = now.AddDate(0, 0, offsets[i])
				}
				req := Request{
					Tier: compliance.TierCompliant, History: history, CandidateID: "H8NY01001",
					CandidateState: "NY", Amount: domain.Money(cents), At: at,
				}
				if calc.Calculate(req).Exceeds {
					continue
				}
				history = append(history, &models.Celebration{
					CandidateID: "H8NY01001", CandidateState: "NY", Amount: domain.Money(cents),
					Status: models.StatusActive, CreatedAt: at,
				})
			}
			sums := map[string]domain.Money{}
			for _, p := range history {
				sums[calc.resolver.Bucket("NY", p.CreatedAt).Key()] += p.Amount
			}
			for _, sum := range sums {
				if sum > tiers.Compliant.PerElection {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(1, 400000)),
		gen.SliceOf(gen.IntRange(0, 200)),
	))

	properties.TestingRun(t)
}
