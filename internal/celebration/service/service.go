// Package service runs the celebration lifecycle: creation under tier limits,
// guarded status transitions, and one-time capture on resolution.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"celebrate/internal/celebration/dedupe"
	"celebrate/internal/celebration/metrics"
	"celebrate/internal/celebration/models"
	"celebrate/internal/celebration/store"
	"celebrate/internal/compliance"
	"celebrate/internal/limits"
	"celebrate/internal/payment"
	"celebrate/internal/profile"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
	audit "celebrate/pkg/platform/audit"
	"celebrate/pkg/platform/sentinel"
	txcontext "celebrate/pkg/platform/tx"
	"celebrate/pkg/requestcontext"
)

const (
	defaultEscrowWindow = 365 * 24 * time.Hour
	// resolveReapplyAttempts bounds how often a confirmed capture is re-applied
	// when a concurrent pause or resume moved the row.
	resolveReapplyAttempts = 3
	systemActor            = "system"
	// defaultTipCeiling is $1,000.
	defaultTipCeiling = domain.Money(100000)
)

// ProfileService supplies the donor's effective (ratcheted) tier.
type ProfileService interface {
	Tier(ctx context.Context, donorID domain.DonorID) (*profile.Profile, compliance.TierName, error)
}

// AuditPublisher records lifecycle events. Emit failing aborts the write it
// accompanies.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// RetryScheduler queues a celebration whose capture should be attempted again.
type RetryScheduler interface {
	Schedule(ctx context.Context, id domain.CelebrationID, reason string) error
}

// Service implements the celebration lifecycle.
type Service struct {
	store        store.Store
	profiles     ProfileService
	calculator   *limits.Calculator
	gateway      payment.Gateway
	tx           txcontext.Runner
	auditor      AuditPublisher
	retries      RetryScheduler
	deduper      dedupe.Deduper
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	escrowWindow time.Duration
	tipCeiling   domain.Money
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTxRunner makes each write and its audit event atomic.
func WithTxRunner(r txcontext.Runner) Option {
	return func(s *Service) { s.tx = r }
}

func WithRetryScheduler(r RetryScheduler) Option {
	return func(s *Service) { s.retries = r }
}

func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) { s.deduper = d }
}

// WithEscrowWindow sets how long a pledge may wait for its trigger.
func WithEscrowWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.escrowWindow = d
		}
	}
}

// WithTipCeiling bounds the optional tip added to a pledge's hold.
func WithTipCeiling(m domain.Money) Option {
	return func(s *Service) {
		if m.IsPositive() {
			s.tipCeiling = m
		}
	}
}

func New(st store.Store, profiles ProfileService, calculator *limits.Calculator, gateway payment.Gateway, opts ...Option) *Service {
	s := &Service{
		store:        st,
		profiles:     profiles,
		calculator:   calculator,
		gateway:      gateway,
		tx:           txcontext.NoopRunner{},
		deduper:      dedupe.NewInMemory(),
		logger:       slog.Default(),
		tracer:       otel.Tracer("celebrate/celebration"),
		escrowWindow: defaultEscrowWindow,
		tipCeiling:   defaultTipCeiling,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns one celebration.
func (s *Service) Get(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err, "failed to load celebration")
	}
	return c, nil
}

// ListByDonor returns the donor's celebrations oldest first.
func (s *Service) ListByDonor(ctx context.Context, donorID domain.DonorID) ([]*models.Celebration, error) {
	out, err := s.store.Find(ctx, store.Filter{DonorID: donorID})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list celebrations")
	}
	return out, nil
}

// ListOpenByBill returns active and paused celebrations conditioned on bill.
func (s *Service) ListOpenByBill(ctx context.Context, billID domain.BillID) ([]*models.Celebration, error) {
	out, err := s.store.Find(ctx, store.Filter{BillID: billID, Statuses: models.OpenStatuses})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list celebrations")
	}
	return out, nil
}

// ListExpired returns open celebrations whose escrow window closed before now.
func (s *Service) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Celebration, error) {
	out, err := s.store.Find(ctx, store.Filter{Statuses: models.OpenStatuses, ExpiresBefore: now, Limit: limit})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired celebrations")
	}
	return out, nil
}

// OpenBills lists bills that still have open celebrations.
func (s *Service) OpenBills(ctx context.Context) ([]domain.BillID, error) {
	bills, err := s.store.ListBills(ctx, models.OpenStatuses)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list bills")
	}
	return bills, nil
}

// Limits reports the donor's current allowance for a candidate without
// reserving anything.
func (s *Service) Limits(ctx context.Context, donorID domain.DonorID, candidateID domain.CandidateID, suppliedState string) (limits.Result, error) {
	state, err := candidateState(candidateID, suppliedState)
	if err != nil {
		return limits.Result{}, err
	}
	_, tier, err := s.profiles.Tier(ctx, donorID)
	if err != nil {
		return limits.Result{}, err
	}
	history, err := s.store.Find(ctx, store.Filter{DonorID: donorID})
	if err != nil {
		return limits.Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pledge history")
	}
	state, err = pinState(history, candidateID, state)
	if err != nil {
		return limits.Result{}, err
	}
	return s.calculator.Calculate(limits.Request{
		Tier:           tier,
		History:        history,
		CandidateID:    candidateID,
		CandidateState: state,
		At:             requestcontext.Now(ctx),
	}), nil
}

func translateStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "celebration not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeStaleState, "celebration changed concurrently")
	case errors.Is(err, models.ErrLedgerTampered):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "celebration ledger failed verification")
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

// transitionMeta stamps who drove a transition.
func transitionMeta(ctx context.Context, extra map[string]string) map[string]string {
	meta := make(map[string]string, len(extra)+2)
	for k, v := range extra {
		meta[k] = v
	}
	actor := requestcontext.Actor(ctx)
	if actor == "" {
		actor = systemActor
	}
	meta[models.MetaActor] = actor
	if rid := requestcontext.RequestID(ctx); rid != "" {
		meta[models.MetaRequestID] = rid
	}
	return meta
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, c *models.Celebration, from models.Status, reason string) error {
	if s.auditor == nil {
		return nil
	}
	event := audit.Event{
		CelebrationID: c.ID,
		DonorID:       c.DonorID,
		Action:        string(action),
		ToStatus:      string(c.Status),
		Reason:        reason,
		Amount:        c.Amount,
	}
	if from != "" {
		event.FromStatus = string(from)
	}
	return s.auditor.Emit(ctx, event)
}

// emitBestEffort is for events that accompany no write of their own.
func (s *Service) emitBestEffort(ctx context.Context, action audit.AuditEvent, c *models.Celebration, reason string) {
	if err := s.emit(ctx, action, c, "", reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to audit celebration event",
			"celebration_id", c.ID,
			"action", action,
			"error", err,
		)
	}
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

// candidateState resolves the state whose primary calendar governs pledges
// to id. House and Senate ids carry it and a supplied state must agree.
func candidateState(id domain.CandidateID, supplied string) (string, error) {
	supplied = normalizeState(supplied)
	derived, ok := id.State()
	if !ok {
		return supplied, nil
	}
	if supplied != "" && supplied != derived {
		return "", dErrors.New(dErrors.CodeValidation, "candidate_state "+supplied+" does not match candidate "+id.String())
	}
	return derived, nil
}

// pinState returns the state the donor's earlier pledges to candidate were
// stored with, or state when there are none. A different state is refused.
func pinState(history []*models.Celebration, candidate domain.CandidateID, state string) (string, error) {
	for _, p := range history {
		if p.CandidateID != candidate {
			continue
		}
		if state != "" && p.CandidateState != state {
			return "", dErrors.New(dErrors.CodeValidation, "candidate_state differs from earlier pledges to "+candidate.String())
		}
		return p.CandidateState, nil
	}
	return state, nil
}
