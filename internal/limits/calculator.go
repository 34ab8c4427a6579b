// Package limits computes how much a donor may still pledge.
package limits

import (
	"time"

	"celebrate/internal/celebration/models"
	"celebrate/internal/compliance"
	"celebrate/internal/cycle"
	"celebrate/pkg/domain"
)

// Reason names the rule that blocked a pledge.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonPerDonationLimit Reason = "per_donation_limit"
	ReasonAnnualCap        Reason = "annual_cap"
	ReasonPerElectionLimit Reason = "per_election_limit"
)

// Request describes a proposed pledge. Amount is the donation only; tips do
// not count toward limits. A zero Amount asks for the current allowance.
type Request struct {
	Tier           compliance.TierName
	History        []*models.Celebration
	CandidateID    domain.CandidateID
	CandidateState string
	Amount         domain.Money
	At             time.Time
}

// Result is the outcome of a limit check.
type Result struct {
	Tier           compliance.TierName
	Exceeds        bool
	Reason         Reason
	Limit          domain.Money
	PerDonation    domain.Money
	CurrentTotal   domain.Money
	RemainingLimit domain.Money
	ResetsAt       time.Time
	// Bucket is the election bucket key for compliant donors, e.g. "2026-primary".
	Bucket string
}

// Calculator applies tier limits against pledge history.
type Calculator struct {
	tiers    compliance.Tiers
	resolver *cycle.Resolver
}

func NewCalculator(tiers compliance.Tiers, resolver *cycle.Resolver) *Calculator {
	return &Calculator{tiers: tiers, resolver: resolver}
}

// Tiers returns the configured tier table.
func (c *Calculator) Tiers() compliance.Tiers { return c.tiers }

// Calculate evaluates req. It never errors; callers decide what to do with
// an exceeding result.
func (c *Calculator) Calculate(req Request) Result {
	tier := c.tiers.For(req.Tier)
	if tier.Reset == compliance.ResetAnnual {
		return c.annual(tier, req)
	}
	return c.perElection(tier, req)
}

// Check is Calculate returning *ExceededError when the pledge is blocked.
func (c *Calculator) Check(req Request) (Result, error) {
	res := c.Calculate(req)
	if res.Exceeds {
		return res, &ExceededError{Result: res}
	}
	return res, nil
}

func (c *Calculator) annual(tier compliance.Tier, req Request) Result {
	start := c.resolver.YearStart(req.At)
	end := c.resolver.NextYearStart(req.At)

	var total domain.Money
	for _, p := range req.History {
		if !countsTowardAnnual(p.Status) {
			continue
		}
		if p.CreatedAt.Before(start) || !p.CreatedAt.Before(end) {
			continue
		}
		total += p.Amount
	}

	res := Result{
		Tier:         tier.Name,
		Limit:        tier.AnnualCap,
		PerDonation:  tier.PerDonation,
		CurrentTotal: total,
		ResetsAt:     end,
	}
	res.RemainingLimit = remaining(tier.AnnualCap, total, tier.PerDonation)
	switch {
	case req.Amount > tier.PerDonation:
		res.Exceeds, res.Reason = true, ReasonPerDonationLimit
	case total+req.Amount > tier.AnnualCap:
		res.Exceeds, res.Reason = true, ReasonAnnualCap
	}
	return res
}

func (c *Calculator) perElection(tier compliance.Tier, req Request) Result {
	bucket := c.resolver.Bucket(req.CandidateState, req.At)

	var total domain.Money
	for _, p := range req.History {
		if p.Status == models.StatusDefunct || p.CandidateID != req.CandidateID {
			continue
		}
		// Each pledge is bucketed by the state it was stored with.
		if c.resolver.Bucket(p.CandidateState, p.CreatedAt).Key() != bucket.Key() {
			continue
		}
		total += p.Amount
	}

	res := Result{
		Tier:         tier.Name,
		Limit:        tier.PerElection,
		PerDonation:  tier.PerDonation,
		CurrentTotal: total,
		ResetsAt:     bucket.End,
		Bucket:       bucket.Key(),
	}
	res.RemainingLimit = remaining(tier.PerElection, total, tier.PerDonation)
	switch {
	case req.Amount > tier.PerDonation:
		res.Exceeds, res.Reason = true, ReasonPerDonationLimit
	case total+req.Amount > tier.PerElection:
		res.Exceeds, res.Reason = true, ReasonPerElectionLimit
	}
	return res
}

// Paused pledges do not hold guest allowance.
func countsTowardAnnual(s models.Status) bool {
	return s != models.StatusDefunct && s != models.StatusPaused
}

func remaining(limit, total, perDonation domain.Money) domain.Money {
	return domain.MinMoney((limit - total).NonNegative(), perDonation)
}
