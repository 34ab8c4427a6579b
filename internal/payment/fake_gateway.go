package payment

import (
	"context"
	"fmt"
	"sync"

	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
)

// FakeGateway is an in-memory provider for development and tests. It dedupes
// on idempotency key the way a real provider does.
type FakeGateway struct {
	mu             sync.Mutex
	seq            int
	byKey          map[domain.IdempotencyKey]string
	amounts        map[string]domain.Money
	captured       map[string]string
	voided         map[string]bool
	authorizeCalls int
	captureCalls   map[string]int
	nextCapture    []captureOutcome
	authorizeErr   error
}

type captureOutcome struct {
	result CaptureResult
	err    error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		byKey:        make(map[domain.IdempotencyKey]string),
		amounts:      make(map[string]domain.Money),
		captured:     make(map[string]string),
		voided:       make(map[string]bool),
		captureCalls: make(map[string]int),
	}
}

// FailNextAuthorize makes the next Authorize return err.
func (f *FakeGateway) FailNextAuthorize(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorizeErr = err
}

// QueueCapture scripts the outcome of the next Capture call. Without a
// scripted outcome captures confirm.
func (f *FakeGateway) QueueCapture(status CaptureStatus, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCapture = append(f.nextCapture, captureOutcome{result: CaptureResult{Status: status}, err: err})
}

func (f *FakeGateway) Authorize(_ context.Context, req AuthorizeRequest) (Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authorizeErr; err != nil {
		f.authorizeErr = nil
		return Authorization{}, err
	}
	if !req.Amount.IsPositive() {
		return Authorization{}, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if id, ok := f.byKey[req.IdempotencyKey]; ok {
		return Authorization{ID: id}, nil
	}
	f.authorizeCalls++
	f.seq++
	id := fmt.Sprintf("auth_%d", f.seq)
	f.byKey[req.IdempotencyKey] = id
	f.amounts[id] = req.Amount
	return Authorization{ID: id}, nil
}

func (f *FakeGateway) Capture(_ context.Context, authorizationID string, _ domain.IdempotencyKey) (CaptureResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.amounts[authorizationID]; !ok {
		return CaptureResult{Status: CaptureFailed, Reason: "unknown authorization"}, nil
	}
	if f.voided[authorizationID] {
		return CaptureResult{Status: CaptureFailed, Reason: "authorization voided"}, nil
	}
	if captureID, ok := f.captured[authorizationID]; ok {
		return CaptureResult{Status: CaptureConfirmed, CaptureID: captureID}, nil
	}
	if len(f.nextCapture) > 0 {
		out := f.nextCapture[0]
		f.nextCapture = f.nextCapture[1:]
		if out.result.Status != CaptureConfirmed || out.err != nil {
			return out.result, out.err
		}
	}
	f.captureCalls[authorizationID]++
	captureID := "cap_" + authorizationID
	f.captured[authorizationID] = captureID
	return CaptureResult{Status: CaptureConfirmed, CaptureID: captureID}, nil
}

func (f *FakeGateway) Void(_ context.Context, authorizationID string, _ domain.IdempotencyKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.captured[authorizationID]; ok {
		return dErrors.Wrap(ErrAlreadyCaptured, dErrors.CodeConflict, "authorization already captured")
	}
	f.voided[authorizationID] = true
	return nil
}

// AuthorizeCalls counts distinct authorizations created.
func (f *FakeGateway) AuthorizeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorizeCalls
}

// CaptureCalls counts confirmed captures for an authorization.
func (f *FakeGateway) CaptureCalls(authorizationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captureCalls[authorizationID]
}

// IsVoided reports whether an authorization was voided.
func (f *FakeGateway) IsVoided(authorizationID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voided[authorizationID]
}

// MarkCaptured records an out-of-band capture, as if the provider settled it
// after a timeout.
func (f *FakeGateway) MarkCaptured(authorizationID, captureID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captured[authorizationID] = captureID
	f.captureCalls[authorizationID]++
}
