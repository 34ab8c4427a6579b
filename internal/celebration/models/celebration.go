// Package models holds the celebration aggregate: status graph, ledger, and
// the immutable donor snapshot.
package models

import (
	"fmt"
	"time"

	"celebrate/internal/compliance"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
)

// Ledger metadata keys.
const (
	MetaActor     = "actor"
	MetaReason    = "reason"
	MetaCaptureID = "capture_id"
	MetaRequestID = "request_id"
)

// Defunct reasons recorded by the engine. Operators may supply others.
const (
	ReasonExpired    = "expired"
	ReasonBillFailed = "bill_failed"
)

// DonorSnapshot freezes the compliance-relevant donor fields at creation.
// The raw foreign id is never copied; only its presence is.
type DonorSnapshot struct {
	Tier         compliance.TierName `json:"tier"`
	FirstName    string              `json:"first_name"`
	LastName     string              `json:"last_name"`
	Address      string              `json:"address"`
	City         string              `json:"city"`
	State        string              `json:"state"`
	Zip          string              `json:"zip"`
	Country      string              `json:"country"`
	HasForeignID bool                `json:"has_foreign_id"`
	Employed     bool                `json:"employed"`
	Occupation   string              `json:"occupation,omitempty"`
	Employer     string              `json:"employer,omitempty"`
	CapturedAt   time.Time           `json:"captured_at"`
}

// NewDonorSnapshot copies p by value.
func NewDonorSnapshot(p compliance.Profile, tier compliance.TierName, at time.Time) DonorSnapshot {
	return DonorSnapshot{
		Tier:         tier,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Address:      p.Address,
		City:         p.City,
		State:        p.State,
		Zip:          p.Zip,
		Country:      p.Country,
		HasForeignID: p.ForeignID != "",
		Employed:     p.Employed,
		Occupation:   p.Occupation,
		Employer:     p.Employer,
		CapturedAt:   at.UTC().Truncate(time.Microsecond),
	}
}

// Celebration is an escrowed, conditional pledge.
type Celebration struct {
	ID              domain.CelebrationID
	DonorID         domain.DonorID
	CandidateID     domain.CandidateID
	CandidateState  string
	BillID          domain.BillID
	Amount          domain.Money
	Tip             domain.Money
	AuthorizationID string
	IdempotencyKey  domain.IdempotencyKey
	Snapshot        DonorSnapshot
	Status          Status
	Ledger          Ledger
	CreatedAt       time.Time
	ExpiresAt       time.Time
	ResolvedAt      *time.Time
	DefunctAt       *time.Time
	DefunctReason   string
	CaptureID       string
}

// NewCelebrationParams carries everything fixed at creation.
type NewCelebrationParams struct {
	ID              domain.CelebrationID
	DonorID         domain.DonorID
	CandidateID     domain.CandidateID
	CandidateState  string
	BillID          domain.BillID
	Amount          domain.Money
	Tip             domain.Money
	AuthorizationID string
	IdempotencyKey  domain.IdempotencyKey
	Snapshot        DonorSnapshot
	CreatedAt       time.Time
	ExpiresAt       time.Time
	Metadata        map[string]string
}

// NewCelebration opens a pledge in the active state with its first ledger entry.
func NewCelebration(p NewCelebrationParams) *Celebration {
	ledger := Ledger(nil).Append(StatusActive, p.CreatedAt, p.Metadata)
	return &Celebration{
		ID:              p.ID,
		DonorID:         p.DonorID,
		CandidateID:     p.CandidateID,
		CandidateState:  p.CandidateState,
		BillID:          p.BillID,
		Amount:          p.Amount,
		Tip:             p.Tip,
		AuthorizationID: p.AuthorizationID,
		IdempotencyKey:  p.IdempotencyKey,
		Snapshot:        p.Snapshot,
		Status:          StatusActive,
		Ledger:          ledger,
		CreatedAt:       ledger[0].Timestamp,
		ExpiresAt:       p.ExpiresAt.UTC().Truncate(time.Microsecond),
	}
}

// Total is the amount authorized: donation plus tip.
func (c *Celebration) Total() domain.Money { return c.Amount + c.Tip }

// Flags are read-only projections of Status.
func (c *Celebration) IsActive() bool   { return c.Status == StatusActive }
func (c *Celebration) IsPaused() bool   { return c.Status == StatusPaused }
func (c *Celebration) IsResolved() bool { return c.Status == StatusResolved }
func (c *Celebration) IsDefunct() bool  { return c.Status == StatusDefunct }

// IsOpen reports whether the pledge can still be resolved or cancelled.
func (c *Celebration) IsOpen() bool { return !c.Status.IsTerminal() }

// IsExpired reports whether the escrow window has closed at now.
func (c *Celebration) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// CanTransitionTo returns a coded error when to is not reachable.
func (c *Celebration) CanTransitionTo(to Status) error {
	if !to.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown status %q", to))
	}
	if !c.Status.CanTransitionTo(to) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("cannot transition celebration from %s to %s", c.Status, to))
	}
	return nil
}

// ApplyTransition appends a ledger entry and refolds Status. The caller must
// persist with the pre-transition status as the guard.
func (c *Celebration) ApplyTransition(to Status, at time.Time, metadata map[string]string) error {
	if err := c.CanTransitionTo(to); err != nil {
		return err
	}
	ledger := c.Ledger.Append(to, at, metadata)
	status, err := ledger.Fold()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "ledger fold failed")
	}
	c.Ledger = ledger
	c.Status = status
	return nil
}

// ApplyResolved transitions to resolved and stamps the capture.
func (c *Celebration) ApplyResolved(at time.Time, captureID string, metadata map[string]string) error {
	meta := copyMetadata(metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	meta[MetaCaptureID] = captureID
	if err := c.ApplyTransition(StatusResolved, at, meta); err != nil {
		return err
	}
	resolvedAt := c.Ledger[len(c.Ledger)-1].Timestamp
	c.ResolvedAt = &resolvedAt
	c.CaptureID = captureID
	return nil
}

// ApplyDefunct transitions to defunct and records why.
func (c *Celebration) ApplyDefunct(at time.Time, reason string, metadata map[string]string) error {
	meta := copyMetadata(metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	meta[MetaReason] = reason
	if err := c.ApplyTransition(StatusDefunct, at, meta); err != nil {
		return err
	}
	defunctAt := c.Ledger[len(c.Ledger)-1].Timestamp
	c.DefunctAt = &defunctAt
	c.DefunctReason = reason
	return nil
}

// VerifyLedger checks the hash chain and that Status agrees with the fold.
func (c *Celebration) VerifyLedger() error {
	if err := c.Ledger.Verify(); err != nil {
		return err
	}
	folded, _ := c.Ledger.Fold()
	if folded != c.Status {
		return fmt.Errorf("%w: status %s disagrees with ledger %s", ErrLedgerTampered, c.Status, folded)
	}
	return nil
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (c *Celebration) Clone() *Celebration {
	if c == nil {
		return nil
	}
	out := *c
	out.Ledger = make(Ledger, len(c.Ledger))
	for i, e := range c.Ledger {
		e.Metadata = copyMetadata(e.Metadata)
		if e.PreviousStatus != nil {
			prev := *e.PreviousStatus
			e.PreviousStatus = &prev
		}
		out.Ledger[i] = e
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		out.ResolvedAt = &t
	}
	if c.DefunctAt != nil {
		t := *c.DefunctAt
		out.DefunctAt = &t
	}
	return &out
}
