package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"celebrate/internal/compliance"
	"celebrate/internal/profile"
	"celebrate/internal/profile/store"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
	audit "celebrate/pkg/platform/audit"
	"celebrate/pkg/platform/sentinel"
	"celebrate/pkg/requestcontext"
)

// AuditPublisher records tier promotions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service classifies donors and enforces the tier ratchet.
type Service struct {
	store   store.Store
	auditor AuditPublisher
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the stored profile.
func (s *Service) Get(ctx context.Context, donorID domain.DonorID) (*profile.Profile, error) {
	p, err := s.store.FindByDonor(ctx, donorID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	return p, nil
}

// Update saves edited fields. The stored tier can rise but never fall.
func (s *Service) Update(ctx context.Context, donorID domain.DonorID, fields compliance.Profile) (*profile.Profile, error) {
	if donorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "donor_id is required")
	}
	fields = normalize(fields)
	before, _ := s.store.FindByDonor(ctx, donorID)

	computed := compliance.Classify(fields)
	if err := s.store.SaveFields(ctx, &profile.Profile{
		DonorID:    donorID,
		Fields:     fields,
		Compliance: computed,
		UpdatedAt:  requestcontext.Now(ctx),
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile")
	}

	after, err := s.Get(ctx, donorID)
	if err != nil {
		return nil, err
	}
	prev := compliance.TierName("")
	if before != nil {
		prev = before.Compliance
	}
	if after.Compliance.Rank() > prev.Rank() && after.Compliance != compliance.TierGuest {
		s.emitRaised(ctx, donorID, prev, after.Compliance)
	}
	return after, nil
}

// Tier returns the profile and its effective tier: the ratchet of the stored
// tier and a fresh classification. A fresh promotion is persisted. Donors with
// no profile are guests.
func (s *Service) Tier(ctx context.Context, donorID domain.DonorID) (*profile.Profile, compliance.TierName, error) {
	p, err := s.store.FindByDonor(ctx, donorID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &profile.Profile{DonorID: donorID, Compliance: compliance.TierGuest}, compliance.TierGuest, nil
	}
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}

	effective := compliance.Ratchet(p.Compliance, compliance.Classify(p.Fields))
	if effective.Rank() > p.Compliance.Rank() {
		stored, err := s.store.RaiseCompliance(ctx, donorID, effective)
		if err != nil {
			return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to raise compliance tier")
		}
		s.emitRaised(ctx, donorID, p.Compliance, stored)
		p.Compliance = stored
		effective = stored
	}
	return p, effective, nil
}

func (s *Service) emitRaised(ctx context.Context, donorID domain.DonorID, from, to compliance.TierName) {
	s.logger.InfoContext(ctx, "donor compliance tier raised",
		"donor_id", donorID,
		"from", from,
		"to", to,
	)
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		DonorID:    donorID,
		Action:     string(audit.EventDonorTierRaised),
		FromStatus: string(from),
		ToStatus:   string(to),
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to audit tier promotion", "donor_id", donorID, "error", err)
	}
}

func normalize(p compliance.Profile) compliance.Profile {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Address = strings.TrimSpace(p.Address)
	p.City = strings.TrimSpace(p.City)
	p.State = strings.ToUpper(strings.TrimSpace(p.State))
	p.Zip = strings.TrimSpace(p.Zip)
	p.Country = strings.TrimSpace(p.Country)
	p.ForeignID = strings.TrimSpace(p.ForeignID)
	p.Occupation = strings.TrimSpace(p.Occupation)
	p.Employer = strings.TrimSpace(p.Employer)
	return p
}
