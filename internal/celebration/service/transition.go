package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"celebrate/internal/celebration/models"
	"celebrate/internal/celebration/store"
	"celebrate/internal/compliance"
	"celebrate/internal/limits"
	"celebrate/internal/payment"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
	audit "celebrate/pkg/platform/audit"
	"celebrate/pkg/platform/sentinel"
	"celebrate/pkg/requestcontext"
)

// ReasonOperator is recorded when an operator cancels without a reason.
const ReasonOperator = "operator"

var actionFor = map[models.Status]audit.AuditEvent{
	models.StatusActive:   audit.EventCelebrationResumed,
	models.StatusPaused:   audit.EventCelebrationPaused,
	models.StatusResolved: audit.EventCelebrationResolved,
	models.StatusDefunct:  audit.EventCelebrationDefunct,
}

// Transition moves a celebration to status to. Moving to the current status
// is a no-op. Resolution always goes through Resolve so funds are captured,
// and resuming re-checks guest limits.
func (s *Service) Transition(ctx context.Context, id domain.CelebrationID, to models.Status, metadata map[string]string) (*models.Celebration, error) {
	if !to.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown status "+string(to))
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == to {
		return c, nil
	}
	switch to {
	case models.StatusResolved:
		return s.Resolve(ctx, id)
	case models.StatusDefunct:
		return s.markDefunct(ctx, id, metadata[models.MetaReason], metadata)
	case models.StatusActive:
		return s.resume(ctx, id, metadata)
	default:
		return s.apply(ctx, c, to, metadata)
	}
}

// Pause suspends an active celebration.
func (s *Service) Pause(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsPaused() {
		return c, nil
	}
	return s.apply(ctx, c, models.StatusPaused, nil)
}

// Resume reactivates a paused celebration. Paused guest pledges release their
// annual allowance, so resuming must fit under the cap again. The cap check
// and the write share the store's per-donor atomic section.
func (s *Service) Resume(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error) {
	return s.resume(ctx, id, nil)
}

func (s *Service) resume(ctx context.Context, id domain.CelebrationID, metadata map[string]string) (*models.Celebration, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsActive() {
		return c, nil
	}
	if err := c.CanTransitionTo(models.StatusActive); err != nil {
		return nil, err
	}
	_, tier, err := s.profiles.Tier(ctx, c.DonorID)
	if err != nil {
		return nil, err
	}
	var check store.CreateCheck
	if s.calculator.Tiers().For(tier).Reset == compliance.ResetAnnual {
		check = s.resumeCheck(tier, c)
	}
	resumed, err := s.applyChecked(ctx, c, models.StatusActive, metadata, check)
	if err != nil {
		s.recordLimitRejection(ctx, c.DonorID, tier, err)
		return nil, err
	}
	return resumed, nil
}

// resumeCheck re-runs the annual check for c against the rest of the donor's
// history.
func (s *Service) resumeCheck(tier compliance.TierName, c *models.Celebration) store.CreateCheck {
	return func(history []*models.Celebration) error {
		others := make([]*models.Celebration, 0, len(history))
		for _, p := range history {
			if p.ID != c.ID {
				others = append(others, p)
			}
		}
		_, err := s.calculator.Check(limits.Request{
			Tier:           tier,
			History:        others,
			CandidateID:    c.CandidateID,
			CandidateState: c.CandidateState,
			Amount:         c.Amount,
			At:             c.CreatedAt,
		})
		return err
	}
}

// MarkDefunct cancels a celebration permanently and releases its hold. The
// hold is voided before the status is written; a hold the provider already
// captured is refused with InvalidTransition so the celebration stays open
// for Resolve or the capture webhook.
func (s *Service) MarkDefunct(ctx context.Context, id domain.CelebrationID, reason string) (*models.Celebration, error) {
	return s.markDefunct(ctx, id, reason, nil)
}

func (s *Service) markDefunct(ctx context.Context, id domain.CelebrationID, reason string, metadata map[string]string) (*models.Celebration, error) {
	if reason == "" {
		reason = ReasonOperator
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsDefunct() {
		return c, nil
	}
	if err := c.CanTransitionTo(models.StatusDefunct); err != nil {
		return nil, err
	}

	voided := true
	if err := s.gateway.Void(ctx, c.AuthorizationID, c.IdempotencyKey); err != nil {
		if errors.Is(err, payment.ErrAlreadyCaptured) {
			s.logger.WarnContext(ctx, "defunct refused, funds already captured",
				"celebration_id", c.ID,
				"authorization_id", c.AuthorizationID,
				"reason", reason,
			)
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidTransition, "funds already captured; celebration must resolve")
		}
		voided = false
		s.logger.ErrorContext(ctx, "failed to void authorization",
			"authorization_id", c.AuthorizationID,
			"reason", reason,
			"error", err,
		)
	}

	defunct, err := s.applyDefunct(ctx, c, reason, metadata)
	if err != nil {
		return nil, err
	}
	if voided {
		s.emitBestEffort(ctx, audit.EventAuthorizationVoided, defunct, reason)
	}
	return defunct, nil
}

// applyDefunct records a released hold. The void already happened, so a lost
// race against a pause or resume is re-applied on the fresh row.
func (s *Service) applyDefunct(ctx context.Context, c *models.Celebration, reason string, metadata map[string]string) (*models.Celebration, error) {
	for attempt := 1; ; attempt++ {
		expected := c.Status
		next := c.Clone()
		if err := next.ApplyDefunct(requestcontext.Now(ctx), reason, transitionMeta(ctx, metadata)); err != nil {
			return nil, err
		}
		err := s.persist(ctx, next, expected, reason)
		if err == nil {
			s.logger.InfoContext(ctx, "celebration defunct",
				"celebration_id", next.ID,
				"from", expected,
				"reason", reason,
				"request_id", requestcontext.RequestID(ctx),
			)
			return next, nil
		}
		if !dErrors.HasCode(err, dErrors.CodeStaleState) || attempt >= resolveReapplyAttempts {
			return nil, err
		}

		fresh, ferr := s.Get(ctx, c.ID)
		if ferr != nil {
			return nil, ferr
		}
		if fresh.IsDefunct() {
			return fresh, nil
		}
		if !fresh.IsOpen() {
			s.logger.ErrorContext(ctx, "hold voided for a resolved celebration",
				"celebration_id", fresh.ID,
				"status", fresh.Status,
				"authorization_id", fresh.AuthorizationID,
			)
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "hold voided for a resolved celebration")
		}
		c = fresh
	}
}

func (s *Service) apply(ctx context.Context, c *models.Celebration, to models.Status, metadata map[string]string) (*models.Celebration, error) {
	return s.applyChecked(ctx, c, to, metadata, nil)
}

func (s *Service) applyChecked(ctx context.Context, c *models.Celebration, to models.Status, metadata map[string]string, check store.CreateCheck) (*models.Celebration, error) {
	expected := c.Status
	if err := c.ApplyTransition(to, requestcontext.Now(ctx), transitionMeta(ctx, metadata)); err != nil {
		return nil, err
	}
	if err := s.persistChecked(ctx, c, expected, metadata[models.MetaReason], check); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "celebration transitioned",
		"celebration_id", c.ID,
		"from", expected,
		"to", to,
		"request_id", requestcontext.RequestID(ctx),
	)
	return c, nil
}

// persist writes c guarded by expected and records the audit event in the
// same transaction.
func (s *Service) persist(ctx context.Context, c *models.Celebration, expected models.Status, reason string) error {
	return s.persistChecked(ctx, c, expected, reason, nil)
}

func (s *Service) persistChecked(ctx context.Context, c *models.Celebration, expected models.Status, reason string, check store.CreateCheck) error {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if check != nil {
			err = s.store.ConditionalUpdateChecked(txCtx, c, expected, check)
		} else {
			err = s.store.ConditionalUpdate(txCtx, c, expected)
		}
		if err != nil {
			return err
		}
		return s.emit(txCtx, actionFor[c.Status], c, expected, reason)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) && s.metrics != nil {
			s.metrics.IncStaleConflict()
		}
		return translateStoreErr(err, "failed to update celebration")
	}
	if s.metrics != nil {
		s.metrics.IncTransition(string(c.Status))
	}
	return nil
}

// Resolve captures the held funds and marks the celebration resolved. An
// already resolved celebration is returned unchanged without a second capture.
// On a failed or pending capture the record is returned unchanged with a
// PaymentCaptureFailed or CapturePending error.
func (s *Service) Resolve(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error) {
	ctx, span := s.tracer.Start(ctx, "celebration.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("celebration_id", id.String()))

	c, err := s.resolve(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	return c, err
}

func (s *Service) resolve(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsResolved() {
		return c, nil
	}
	if err := c.CanTransitionTo(models.StatusResolved); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.gateway.Capture(ctx, c.AuthorizationID, c.IdempotencyKey)
	if s.metrics != nil {
		s.metrics.ObserveCapture(time.Since(start).Seconds())
	}

	switch {
	case errors.Is(err, payment.ErrUnknownOutcome), err == nil && result.Status == payment.CapturePending:
		s.captureOutcome(ctx, c, audit.EventCapturePending, "pending", errString(err))
		return c, dErrors.Wrap(errOrPending(err), dErrors.CodeCapturePending, "capture outcome pending provider confirmation")
	case err != nil:
		s.captureOutcome(ctx, c, audit.EventCaptureFailed, "error", err.Error())
		return c, dErrors.Wrap(err, dErrors.CodePaymentCaptureFailed, "payment capture failed")
	case result.Status == payment.CaptureFailed:
		s.captureOutcome(ctx, c, audit.EventCaptureFailed, "failed", result.Reason)
		return c, dErrors.New(dErrors.CodePaymentCaptureFailed, "payment capture failed: "+result.Reason)
	}

	if s.metrics != nil {
		s.metrics.IncCapture("confirmed")
	}
	return s.applyCaptured(ctx, c, result.CaptureID)
}

var errCapturePending = errors.New("capture pending")

func errOrPending(err error) error {
	if err != nil {
		return err
	}
	return errCapturePending
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// captureOutcome records a capture that did not settle and queues a retry.
// Capture is keyed by the idempotency key, so a retry never double-charges.
func (s *Service) captureOutcome(ctx context.Context, c *models.Celebration, action audit.AuditEvent, outcome, reason string) {
	if s.metrics != nil {
		s.metrics.IncCapture(outcome)
	}
	s.logger.WarnContext(ctx, "celebration capture did not settle",
		"celebration_id", c.ID,
		"outcome", outcome,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emitBestEffort(ctx, action, c, reason)
	if s.retries == nil {
		return
	}
	if err := s.retries.Schedule(ctx, c.ID, outcome); err != nil {
		s.logger.ErrorContext(ctx, "failed to schedule capture retry",
			"celebration_id", c.ID,
			"error", err,
		)
	}
}

// applyCaptured records a confirmed capture. Money has moved, so a lost race
// against a pause or resume is re-applied on the fresh row.
func (s *Service) applyCaptured(ctx context.Context, c *models.Celebration, captureID string) (*models.Celebration, error) {
	for attempt := 1; ; attempt++ {
		expected := c.Status
		next := c.Clone()
		if err := next.ApplyResolved(requestcontext.Now(ctx), captureID, transitionMeta(ctx, nil)); err != nil {
			return nil, err
		}
		err := s.persist(ctx, next, expected, "")
		if err == nil {
			s.logger.InfoContext(ctx, "celebration resolved",
				"celebration_id", next.ID,
				"capture_id", captureID,
				"request_id", requestcontext.RequestID(ctx),
			)
			return next, nil
		}
		if !dErrors.HasCode(err, dErrors.CodeStaleState) || attempt >= resolveReapplyAttempts {
			return nil, err
		}

		fresh, ferr := s.Get(ctx, c.ID)
		if ferr != nil {
			return nil, ferr
		}
		if fresh.IsResolved() {
			return fresh, nil
		}
		if !fresh.IsOpen() {
			s.logger.ErrorContext(ctx, "capture confirmed for a closed celebration",
				"celebration_id", fresh.ID,
				"status", fresh.Status,
				"capture_id", captureID,
			)
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "capture confirmed for a closed celebration")
		}
		c = fresh
	}
}

// ConfirmCapture applies a verified provider notification. A confirmed
// capture resolves the celebration without calling Capture again; a failed
// one leaves it open and queues a retry once per provider event.
func (s *Service) ConfirmCapture(ctx context.Context, n payment.Notification) (*models.Celebration, error) {
	if n.EventID == "" || n.AuthorizationID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "event_id and authorization_id are required")
	}
	matches, err := s.store.Find(ctx, store.Filter{AuthorizationID: n.AuthorizationID, Limit: 1})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up authorization")
	}
	if len(matches) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "no celebration for authorization")
	}
	c := matches[0]

	switch n.Status {
	case payment.CaptureConfirmed:
		if c.IsResolved() {
			s.claim(ctx, n.EventID)
			return c, nil
		}
		if !c.IsOpen() {
			s.logger.ErrorContext(ctx, "provider confirmed capture for a closed celebration",
				"celebration_id", c.ID,
				"status", c.Status,
				"event_id", n.EventID,
			)
			return nil, dErrors.New(dErrors.CodeInvalidTransition, "celebration is "+string(c.Status))
		}
		resolved, err := s.applyCaptured(ctx, c, n.CaptureID)
		if err != nil {
			return nil, err
		}
		s.claim(ctx, n.EventID)
		return resolved, nil
	case payment.CaptureFailed:
		if !c.IsOpen() {
			return c, nil
		}
		if err := s.deduper.Claim(ctx, n.EventID, requestcontext.Now(ctx)); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return c, nil
			}
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record webhook event")
		}
		s.captureOutcome(ctx, c, audit.EventCaptureFailed, "failed", n.Reason)
		return c, nil
	case payment.CapturePending:
		return c, nil
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "unknown capture status "+string(n.Status))
	}
}

// claim records a processed event whose effect was idempotent anyway.
func (s *Service) claim(ctx context.Context, eventID string) {
	err := s.deduper.Claim(ctx, eventID, requestcontext.Now(ctx))
	if err != nil && !errors.Is(err, sentinel.ErrAlreadyUsed) {
		s.logger.WarnContext(ctx, "failed to record webhook event", "event_id", eventID, "error", err)
	}
}
