// Package payment defines the payment collaborator and its adapters.
//
// Authorize holds funds at pledge time; Capture moves them exactly once at
// resolution; Void releases a hold that will never be captured. Every call
// carries the pledge's idempotency key so the provider can dedupe retries.
package payment

import (
	"context"
	"errors"

	"celebrate/pkg/domain"
)

// CaptureStatus is the synchronous outcome of a capture call.
type CaptureStatus string

const (
	CaptureConfirmed CaptureStatus = "confirmed"
	CapturePending   CaptureStatus = "pending"
	CaptureFailed    CaptureStatus = "failed"
)

// ErrUnknownOutcome means the call may or may not have taken effect (timeout,
// dropped connection). The webhook is authoritative for what happened.
var ErrUnknownOutcome = errors.New("payment outcome unknown")

// ErrDeclined means the provider refused the request outright.
var ErrDeclined = errors.New("payment declined")

// ErrAlreadyCaptured means a void arrived after the hold was captured. The
// funds have moved and the hold can no longer be released.
var ErrAlreadyCaptured = errors.New("authorization already captured")

// AuthorizeRequest holds funds for a pledge.
type AuthorizeRequest struct {
	IdempotencyKey domain.IdempotencyKey
	DonorID        domain.DonorID
	CelebrationID  domain.CelebrationID
	Amount         domain.Money
	Metadata       map[string]string
}

// Authorization is a successful hold.
type Authorization struct {
	ID string
}

// CaptureResult is what the provider said about a capture.
type CaptureResult struct {
	Status    CaptureStatus
	CaptureID string
	Reason    string
}

// Gateway is the payment collaborator.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error)
	Capture(ctx context.Context, authorizationID string, key domain.IdempotencyKey) (CaptureResult, error)
	Void(ctx context.Context, authorizationID string, key domain.IdempotencyKey) error
}

// Notification is a verified webhook from the provider.
type Notification struct {
	EventID         string        `json:"event_id"`
	AuthorizationID string        `json:"authorization_id"`
	Status          CaptureStatus `json:"status"`
	CaptureID       string        `json:"capture_id,omitempty"`
	Reason          string        `json:"reason,omitempty"`
}
