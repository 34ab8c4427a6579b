package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celebrate/internal/compliance"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
)

var t0 = time.Date(2026, time.March, 2, 15, 4, 5, 123456789, time.UTC)

func newTestCelebration() *Celebration {
	return NewCelebration(NewCelebrationParams{
		ID:              domain.NewCelebrationID(),
		DonorID:         domain.DonorID(uuid.New()),
		CandidateID:     "H8NY01001",
		CandidateState:  "NY",
		BillID:          "hr-1-119",
		Amount:          domain.Dollars(25),
		Tip:             domain.Money(150),
		AuthorizationID: "auth_1",
		IdempotencyKey:  "key-1",
		Snapshot:        NewDonorSnapshot(compliance.Profile{FirstName: "Ada", ForeignID: "P1"}, compliance.TierGuest, t0),
		CreatedAt:       t0,
		ExpiresAt:       t0.AddDate(1, 0, 0),
	})
}

func TestNewCelebration(t *testing.T) {
	c := newTestCelebration()

	assert.Equal(t, StatusActive, c.Status)
	assert.True(t, c.IsActive())
	require.Len(t, c.Ledger, 1)
	assert.Nil(t, c.Ledger[0].PreviousStatus)
	assert.Equal(t, StatusActive, c.Ledger[0].NewStatus)
	assert.Equal(t, GenesisHash, c.Ledger[0].PreviousHash)
	assert.Equal(t, t0.Truncate(time.Microsecond), c.CreatedAt)
	assert.Equal(t, domain.Money(2650), c.Total())
	assert.True(t, c.Snapshot.HasForeignID)
	require.NoError(t, c.VerifyLedger())
}

func TestStatusEdges(t *testing.T) {
	legal := map[[2]Status]bool{
		{StatusActive, StatusPaused}:   true,
		{StatusActive, StatusResolved}: true,
		{StatusActive, StatusDefunct}:  true,
		{StatusPaused, StatusActive}:   true,
		{StatusPaused, StatusResolved}: true,
		{StatusPaused, StatusDefunct}:  true,
	}
	all := []Status{StatusActive, StatusPaused, StatusResolved, StatusDefunct}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]Status{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestApplyTransition(t *testing.T) {
	c := newTestCelebration()

	require.NoError(t, c.ApplyTransition(StatusPaused, t0.Add(time.Hour), map[string]string{MetaActor: "donor"}))
	assert.True(t, c.IsPaused())
	require.Len(t, c.Ledger, 2)
	assert.Equal(t, StatusActive, *c.Ledger[1].PreviousStatus)
	assert.Equal(t, c.Ledger[0].Hash, c.Ledger[1].PreviousHash)

	require.NoError(t, c.ApplyTransition(StatusActive, t0.Add(2*time.Hour), nil))
	require.NoError(t, c.ApplyResolved(t0.Add(3*time.Hour), "cap_1", nil))
	assert.True(t, c.IsResolved())
	assert.Equal(t, "cap_1", c.CaptureID)
	require.NotNil(t, c.ResolvedAt)
	assert.Equal(t, "cap_1", c.Ledger[3].Metadata[MetaCaptureID])
	require.NoError(t, c.VerifyLedger())

	err := c.ApplyTransition(StatusActive, t0.Add(4*time.Hour), nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	assert.Len(t, c.Ledger, 4)
}

func TestApplyDefunct(t *testing.T) {
	c := newTestCelebration()
	require.NoError(t, c.ApplyDefunct(t0.Add(time.Minute), ReasonBillFailed, nil))
	assert.True(t, c.IsDefunct())
	assert.Equal(t, ReasonBillFailed, c.DefunctReason)
	assert.Equal(t, ReasonBillFailed, c.Ledger[1].Metadata[MetaReason])

	err := c.ApplyResolved(t0.Add(2*time.Minute), "cap", nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func TestCanTransitionToUnknown(t *testing.T) {
	c := newTestCelebration()
	err := c.CanTransitionTo("archived")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestVerifyLedgerDetectsTampering(t *testing.T) {
	tests := map[string]func(c *Celebration){
		"edited metadata": func(c *Celebration) {
			c.Ledger[1].Metadata = map[string]string{MetaActor: "someone-else"}
		},
		"edited status with rehash": func(c *Celebration) {
			c.Ledger[1].NewStatus = StatusResolved
			c.Ledger[1].Hash = c.Ledger[1].computeHash()
		},
		"dropped entry": func(c *Celebration) {
			c.Ledger = c.Ledger[:1]
		},
		"status flag drift": func(c *Celebration) {
			c.Status = StatusActive
		},
		"reordered": func(c *Celebration) {
			c.Ledger[0], c.Ledger[1] = c.Ledger[1], c.Ledger[0]
		},
	}
	for name, tamper := range tests {
		t.Run(name, func(t *testing.T) {
			c := newTestCelebration()
			require.NoError(t, c.ApplyTransition(StatusPaused, t0.Add(time.Hour), map[string]string{MetaActor: "donor"}))
			tamper(c)
			assert.ErrorIs(t, c.VerifyLedger(), ErrLedgerTampered)
		})
	}
}

func TestLedgerAppendDoesNotAlias(t *testing.T) {
	base := Ledger(nil).Append(StatusActive, t0, nil)
	a := base.Append(StatusPaused, t0.Add(time.Second), nil)
	b := base.Append(StatusDefunct, t0.Add(time.Second), nil)

	assert.Len(t, base, 1)
	assert.Equal(t, StatusPaused, a[1].NewStatus)
	assert.Equal(t, StatusDefunct, b[1].NewStatus)
}

func TestClone(t *testing.T) {
	c := newTestCelebration()
	require.NoError(t, c.ApplyTransition(StatusPaused, t0.Add(time.Hour), map[string]string{MetaActor: "donor"}))

	cp := c.Clone()
	cp.Ledger[1].Metadata[MetaActor] = "mutated"
	*cp.Ledger[1].PreviousStatus = StatusDefunct

	assert.Equal(t, "donor", c.Ledger[1].Metadata[MetaActor])
	assert.Equal(t, StatusActive, *c.Ledger[1].PreviousStatus)
}

func TestIsExpired(t *testing.T) {
	c := newTestCelebration()
	assert.False(t, c.IsExpired(t0))
	assert.True(t, c.IsExpired(c.ExpiresAt))
}
