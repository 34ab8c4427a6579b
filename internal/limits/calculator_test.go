package limits

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"celebrate/internal/celebration/models"
	"celebrate/internal/compliance"
	"celebrate/internal/cycle"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
)

const candidateA domain.CandidateID = "H8NY01001"

type CalculatorSuite struct {
	suite.Suite
	loc        *time.Location
	now        time.Time
	calculator *Calculator
	donor      domain.DonorID
}

func TestCalculatorSuite(t *testing.T) {
	suite.Run(t, new(CalculatorSuite))
}

func (s *CalculatorSuite) SetupTest() {
	loc, err := time.LoadLocation("America/New_York")
	s.Require().NoError(err)
	s.loc = loc
	s.now = time.Date(2026, time.March, 10, 12, 0, 0, 0, loc)

	cal, err := cycle.ParseCalendar([]byte("elections:\n  - {state: NY, type: primary, date: 2026-06-23}\n"), loc)
	s.Require().NoError(err)
	resolver := cycle.NewResolver(loc, cycle.WithCalendar(cal), cycle.WithClock(func() time.Time { return s.now }))
	s.calculator = NewCalculator(compliance.DefaultTiers(), resolver)
	s.donor = domain.DonorID(uuid.New())
}

func (s *CalculatorSuite) pledge(amount domain.Money, status models.Status, at time.Time) *models.Celebration {
	return s.pledgeTo(candidateA, amount, status, at)
}

func (s *CalculatorSuite) pledgeTo(candidate domain.CandidateID, amount domain.Money, status models.Status, at time.Time) *models.Celebration {
	return &models.Celebration{
		ID:             domain.NewCelebrationID(),
		DonorID:        s.donor,
		CandidateID:    candidate,
		CandidateState: "NY",
		Amount:         amount,
		Status:         status,
		CreatedAt:      at,
	}
}

func (s *CalculatorSuite) guest(history []*models.Celebration, amount domain.Money) Result {
	return s.calculator.Calculate(Request{
		Tier:           compliance.TierGuest,
		History:        history,
		CandidateID:    candidateA,
		CandidateState: "NY",
		Amount:         amount,
		At:             s.now,
	})
}

func (s *CalculatorSuite) compliant(history []*models.Celebration, amount domain.Money, at time.Time) Result {
	return s.calculator.Calculate(Request{
		Tier:           compliance.TierCompliant,
		History:        history,
		CandidateID:    candidateA,
		CandidateState: "NY",
		Amount:         amount,
		At:             at,
	})
}

func (s *CalculatorSuite) TestScenarioA_GuestOverPerDonation() {
	res := s.guest(nil, domain.Dollars(75))
	s.True(res.Exceeds)
	s.Equal(ReasonPerDonationLimit, res.Reason)
	s.Equal(domain.Dollars(50), res.RemainingLimit)
	s.Equal(time.Date(2027, time.January, 1, 0, 0, 0, 0, s.loc), res.ResetsAt)
}

func (s *CalculatorSuite) TestScenarioB_GuestAnnualCap() {
	history := []*models.Celebration{s.pledge(domain.Dollars(40), models.StatusActive, s.now.Add(-time.Hour))}
	res := s.guest(history, domain.Dollars(40))
	s.True(res.Exceeds)
	s.Equal(ReasonAnnualCap, res.Reason)
	s.Equal(domain.Dollars(10), res.RemainingLimit)
	s.Equal(domain.Dollars(40), res.CurrentTotal)
}

func (s *CalculatorSuite) TestScenarioC_CompliantSeparateBuckets() {
	primaryAt := time.Date(2026, time.May, 1, 10, 0, 0, 0, s.loc)
	generalAt := time.Date(2026, time.September, 1, 10, 0, 0, 0, s.loc)

	first := s.compliant(nil, domain.Dollars(3500), primaryAt)
	s.False(first.Exceeds)
	s.Equal("2026-primary", first.Bucket)

	history := []*models.Celebration{s.pledge(domain.Dollars(3500), models.StatusActive, primaryAt)}
	second := s.compliant(history, domain.Dollars(3500), generalAt)
	s.False(second.Exceeds)
	s.Equal("2026-general", second.Bucket)
	s.Equal(cycle.GeneralBoundary(2026, s.loc), second.ResetsAt)

	again := s.compliant(history, domain.Dollars(1), primaryAt.Add(time.Hour))
	s.True(again.Exceeds)
	s.Equal(ReasonPerElectionLimit, again.Reason)
	s.Zero(again.RemainingLimit)
}

func (s *CalculatorSuite) TestCompliantBucketsEachPledgeByItsStoredState() {
	cal, err := cycle.ParseCalendar([]byte("elections:\n  - {state: NY, type: primary, date: 2026-06-23}\n  - {state: TX, type: primary, date: 2026-03-03}\n"), s.loc)
	s.Require().NoError(err)
	calculator := NewCalculator(compliance.DefaultTiers(), cycle.NewResolver(s.loc, cycle.WithCalendar(cal)))

	texasGeneral := s.pledge(domain.Dollars(3500), models.StatusActive, time.Date(2026, time.March, 4, 10, 0, 0, 0, s.loc))
	texasGeneral.CandidateState = "TX"
	newYorkPrimary := s.pledge(domain.Dollars(1000), models.StatusActive, time.Date(2026, time.March, 1, 10, 0, 0, 0, s.loc))

	res := calculator.Calculate(Request{
		Tier:           compliance.TierCompliant,
		History:        []*models.Celebration{texasGeneral, newYorkPrimary},
		CandidateID:    candidateA,
		CandidateState: "NY",
		At:             time.Date(2026, time.March, 5, 10, 0, 0, 0, s.loc),
	})
	s.Equal("2026-primary", res.Bucket)
	s.Equal(domain.Dollars(1000), res.CurrentTotal)
	s.Equal(domain.Dollars(2500), res.RemainingLimit)
}

func (s *CalculatorSuite) TestGuestExcludesDefunctAndPaused() {
	history := []*models.Celebration{
		s.pledge(domain.Dollars(30), models.StatusDefunct, s.now.Add(-time.Hour)),
		s.pledge(domain.Dollars(30), models.StatusPaused, s.now.Add(-time.Hour)),
		s.pledge(domain.Dollars(20), models.StatusResolved, s.now.Add(-time.Hour)),
	}
	res := s.guest(history, domain.Dollars(30))
	s.False(res.Exceeds)
	s.Equal(domain.Dollars(20), res.CurrentTotal)
	s.Equal(domain.Dollars(30), res.RemainingLimit)
}

func (s *CalculatorSuite) TestGuestIgnoresPriorYears() {
	lastYear := time.Date(2025, time.December, 31, 23, 0, 0, 0, s.loc)
	history := []*models.Celebration{s.pledge(domain.Dollars(50), models.StatusResolved, lastYear)}
	res := s.guest(history, domain.Dollars(50))
	s.False(res.Exceeds)
	s.Zero(res.CurrentTotal)
}

func (s *CalculatorSuite) TestGuestCountsAcrossCandidates() {
	history := []*models.Celebration{s.pledgeTo("S6CA00001", domain.Dollars(45), models.StatusActive, s.now.Add(-time.Hour))}
	res := s.guest(history, domain.Dollars(10))
	s.True(res.Exceeds)
	s.Equal(domain.Dollars(5), res.RemainingLimit)
}

func (s *CalculatorSuite) TestCompliantCountsPausedButNotDefunctOrOtherCandidates() {
	at := time.Date(2026, time.May, 1, 10, 0, 0, 0, s.loc)
	history := []*models.Celebration{
		s.pledge(domain.Dollars(1000), models.StatusPaused, at),
		s.pledge(domain.Dollars(1000), models.StatusDefunct, at),
		s.pledgeTo("S6CA00001", domain.Dollars(3500), models.StatusActive, at),
	}
	res := s.compliant(history, domain.Dollars(2500), at)
	s.False(res.Exceeds)
	s.Equal(domain.Dollars(1000), res.CurrentTotal)

	res = s.compliant(history, domain.Dollars(2501), at)
	s.True(res.Exceeds)
	s.Equal(domain.Dollars(2500), res.RemainingLimit)
}

func (s *CalculatorSuite) TestCompliantPerDonation() {
	res := s.compliant(nil, domain.Dollars(3501), s.now)
	s.True(res.Exceeds)
	s.Equal(ReasonPerDonationLimit, res.Reason)
	s.Equal(domain.Dollars(3500), res.RemainingLimit)
}

func (s *CalculatorSuite) TestZeroAmountReportsAllowance() {
	res := s.guest(nil, 0)
	s.False(res.Exceeds)
	s.Equal(domain.Dollars(50), res.RemainingLimit)
}

func (s *CalculatorSuite) TestCheckReturnsExceededError() {
	_, err := s.calculator.Check(Request{Tier: compliance.TierGuest, Amount: domain.Dollars(75), At: s.now})
	s.Require().Error(err)

	var exceeded *ExceededError
	s.Require().ErrorAs(err, &exceeded)
	s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))
	details := exceeded.ErrorDetails()
	s.Equal(int64(5000), details["remaining_limit"])
	s.Equal("2027-01-01T05:00:00Z", details["resets_at"])

	_, err = s.calculator.Check(Request{Tier: compliance.TierGuest, Amount: domain.Dollars(5), At: s.now})
	s.NoError(err)
}

func TestRemainingClamp(t *testing.T) {
	assert.Equal(t, domain.Money(0), remaining(100, 150, 50))
	assert.Equal(t, domain.Money(50), remaining(100, 0, 50))
	assert.Equal(t, domain.Money(30), remaining(100, 70, 50))
	require.Equal(t, domain.Money(100), remaining(100, 0, 500))
}
