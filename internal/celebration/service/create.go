package service

import (
	"context"
	"errors"

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

// CreateRequest is a new pledge. Amount is the donation; Tip is optional and
// never counts toward limits. CandidateState is optional for House and Senate
// ids, which carry their state.
type CreateRequest struct {
	DonorID        domain.DonorID
	CandidateID    domain.CandidateID
	CandidateState string
	BillID         domain.BillID
	Amount         domain.Money
	Tip            domain.Money
	IdempotencyKey domain.IdempotencyKey
}

// Validate rejects malformed requests before anything is persisted.
func (r CreateRequest) Validate() error {
	switch {
	case r.DonorID.IsNil():
		return dErrors.New(dErrors.CodeValidation, "donor_id is required")
	case r.CandidateID == "":
		return dErrors.New(dErrors.CodeValidation, "candidate_id is required")
	case r.BillID == "":
		return dErrors.New(dErrors.CodeValidation, "bill_id is required")
	case r.IdempotencyKey == "":
		return dErrors.New(dErrors.CodeValidation, "idempotency key is required")
	case !r.Amount.IsPositive():
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	case r.Tip.IsNegative():
		return dErrors.New(dErrors.CodeValidation, "tip must not be negative")
	}
	if st := normalizeState(r.CandidateState); st != "" && len(st) != 2 {
		return dErrors.New(dErrors.CodeValidation, "candidate_state must be a two-letter code")
	}
	return nil
}

// CreateResult carries the celebration and whether it already existed under
// the same idempotency key.
type CreateResult struct {
	Celebration *models.Celebration
	Replayed    bool
}

// Create authorizes and records a pledge. A repeated idempotency key returns
// the original celebration without a second authorization.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	ctx, span := s.tracer.Start(ctx, "celebration.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("donor_id", req.DonorID.String()),
		attribute.String("candidate_id", req.CandidateID.String()),
		attribute.Int64("amount_cents", req.Amount.Cents()),
	)

	res, err := s.create(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return CreateResult{}, err
	}
	span.SetAttributes(
		attribute.String("celebration_id", res.Celebration.ID.String()),
		attribute.Bool("replayed", res.Replayed),
	)
	return res, nil
}

func (s *Service) create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if err := req.Validate(); err != nil {
		return CreateResult{}, err
	}
	if req.Tip > s.tipCeiling {
		return CreateResult{}, dErrors.New(dErrors.CodeValidation, "tip must not exceed "+s.tipCeiling.String())
	}
	hold, err := req.Amount.Add(req.Tip)
	if err != nil {
		return CreateResult{}, dErrors.Wrap(err, dErrors.CodeValidation, "amount plus tip is too large")
	}
	req.CandidateState, err = candidateState(req.CandidateID, req.CandidateState)
	if err != nil {
		return CreateResult{}, err
	}

	if existing, err := s.store.FindByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		return s.replay(ctx, req, existing)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return CreateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check idempotency key")
	}

	donor, tier, err := s.profiles.Tier(ctx, req.DonorID)
	if err != nil {
		return CreateResult{}, err
	}
	now := requestcontext.Now(ctx)
	check := func(history []*models.Celebration) error {
		pinned, err := pinState(history, req.CandidateID, req.CandidateState)
		if err != nil {
			return err
		}
		if pinned != req.CandidateState {
			return dErrors.New(dErrors.CodeValidation, "candidate_state differs from earlier pledges to "+req.CandidateID.String())
		}
		_, err = s.calculator.Check(limits.Request{
			Tier:           tier,
			History:        history,
			CandidateID:    req.CandidateID,
			CandidateState: req.CandidateState,
			Amount:         req.Amount,
			At:             now,
		})
		return err
	}

	history, err := s.store.Find(ctx, store.Filter{DonorID: req.DonorID})
	if err != nil {
		return CreateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pledge history")
	}
	if req.CandidateState, err = pinState(history, req.CandidateID, req.CandidateState); err != nil {
		return CreateResult{}, err
	}
	if err := check(history); err != nil {
		s.recordLimitRejection(ctx, req.DonorID, tier, err)
		return CreateResult{}, err
	}

	id := domain.NewCelebrationID()
	auth, err := s.gateway.Authorize(ctx, payment.AuthorizeRequest{
		IdempotencyKey: req.IdempotencyKey,
		DonorID:        req.DonorID,
		CelebrationID:  id,
		Amount:         hold,
		Metadata: map[string]string{
			"candidate_id": req.CandidateID.String(),
			"bill_id":      req.BillID.String(),
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "payment authorization failed",
			"donor_id", req.DonorID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			return CreateResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "payment authorization failed")
		}
		return CreateResult{}, err
	}

	c := models.NewCelebration(models.NewCelebrationParams{
		ID:              id,
		DonorID:         req.DonorID,
		CandidateID:     req.CandidateID,
		CandidateState:  req.CandidateState,
		BillID:          req.BillID,
		Amount:          req.Amount,
		Tip:             req.Tip,
		AuthorizationID: auth.ID,
		IdempotencyKey:  req.IdempotencyKey,
		Snapshot:        models.NewDonorSnapshot(donor.Fields, tier, now),
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.escrowWindow),
		Metadata:        transitionMeta(ctx, nil),
	})

	var (
		created  *models.Celebration
		existing *models.Celebration
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		created, err = s.store.Create(txCtx, c, check)
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			existing = created
			return err
		}
		if err != nil {
			return err
		}
		return s.emit(txCtx, audit.EventCelebrationCreated, created, "", "")
	})

	switch {
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		if existing == nil {
			existing, err = s.store.FindByIdempotencyKey(ctx, req.IdempotencyKey)
			if err != nil {
				return CreateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load existing celebration")
			}
		}
		if existing.AuthorizationID != auth.ID {
			s.voidBestEffort(ctx, auth.ID, req.IdempotencyKey, "duplicate create")
		}
		return s.replay(ctx, req, existing)
	case err != nil:
		s.voidBestEffort(ctx, auth.ID, req.IdempotencyKey, "create aborted")
		var exceeded *limits.ExceededError
		if errors.As(err, &exceeded) {
			s.recordLimitRejection(ctx, req.DonorID, tier, err)
			return CreateResult{}, err
		}
		if dErrors.CodeOf(err) != dErrors.CodeInternal {
			return CreateResult{}, err
		}
		return CreateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create celebration")
	}

	if s.metrics != nil {
		s.metrics.IncCreated()
		s.metrics.AddPledged(created.Amount.Cents())
	}
	s.logger.InfoContext(ctx, "celebration created",
		"celebration_id", created.ID,
		"donor_id", created.DonorID,
		"tier", tier,
		"amount", created.Amount.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return CreateResult{Celebration: created}, nil
}

// replay answers a repeated idempotency key. A key owned by another donor is
// a conflict rather than a disclosure of that donor's pledge.
func (s *Service) replay(ctx context.Context, req CreateRequest, existing *models.Celebration) (CreateResult, error) {
	if existing.DonorID != req.DonorID {
		return CreateResult{}, dErrors.New(dErrors.CodeConflict, "idempotency key already used")
	}
	if s.metrics != nil {
		s.metrics.IncIdempotentHit()
	}
	s.logger.InfoContext(ctx, "celebration create replayed",
		"celebration_id", existing.ID,
		"donor_id", existing.DonorID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return CreateResult{Celebration: existing, Replayed: true}, nil
}

func (s *Service) recordLimitRejection(ctx context.Context, donorID domain.DonorID, tier compliance.TierName, err error) {
	var exceeded *limits.ExceededError
	if !errors.As(err, &exceeded) {
		return
	}
	if s.metrics != nil {
		s.metrics.IncLimitRejection(string(tier), string(exceeded.Result.Reason))
	}
	s.logger.InfoContext(ctx, "celebration blocked by contribution limit",
		"donor_id", donorID,
		"tier", tier,
		"reason", exceeded.Result.Reason,
		"remaining", exceeded.Result.RemainingLimit.String(),
	)
}

// voidBestEffort releases a hold. Failures are logged; an unvoided hold
// lapses at the provider.
func (s *Service) voidBestEffort(ctx context.Context, authorizationID string, key domain.IdempotencyKey, why string) bool {
	if err := s.gateway.Void(ctx, authorizationID, key); err != nil {
		s.logger.ErrorContext(ctx, "failed to void authorization",
			"authorization_id", authorizationID,
			"reason", why,
			"error", err,
		)
		return false
	}
	s.logger.InfoContext(ctx, "authorization voided",
		"authorization_id", authorizationID,
		"reason", why,
	)
	return true
}
