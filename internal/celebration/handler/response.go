package handler

import (
	"time"

	"celebrate/internal/celebration/models"
)

type celebrationResponse struct {
	ID              string        `json:"id"`
	DonorID         string        `json:"donor_id"`
	CandidateID     string        `json:"candidate_id"`
	CandidateState  string        `json:"candidate_state,omitempty"`
	BillID          string        `json:"bill_id"`
	AmountCents     int64         `json:"amount_cents"`
	TipCents        int64         `json:"tip_cents"`
	Status          string        `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
	DefunctAt       *time.Time    `json:"defunct_at,omitempty"`
	DefunctReason   string        `json:"defunct_reason,omitempty"`
	AuthorizationID string        `json:"authorization_id,omitempty"`
	CaptureID       string        `json:"capture_id,omitempty"`
	Ledger          models.Ledger `json:"ledger,omitempty"`
	LedgerVerified  *bool         `json:"ledger_verified,omitempty"`
}

func toResponse(c *models.Celebration, withLedger bool) celebrationResponse {
	resp := celebrationResponse{
		ID:             c.ID.String(),
		DonorID:        c.DonorID.String(),
		CandidateID:    c.CandidateID.String(),
		CandidateState: c.CandidateState,
		BillID:         c.BillID.String(),
		AmountCents:    c.Amount.Cents(),
		TipCents:       c.Tip.Cents(),
		Status:         string(c.Status),
		CreatedAt:      c.CreatedAt,
		ExpiresAt:      c.ExpiresAt,
		ResolvedAt:     c.ResolvedAt,
		DefunctAt:      c.DefunctAt,
		DefunctReason:  c.DefunctReason,
	}
	if withLedger {
		resp.Ledger = c.Ledger
	}
	return resp
}
