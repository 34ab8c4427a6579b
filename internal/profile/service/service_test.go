package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"celebrate/internal/compliance"
	"celebrate/internal/profile"
	"celebrate/internal/profile/store"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
	audit "celebrate/pkg/platform/audit"
	compliancepub "celebrate/pkg/platform/audit/publishers/compliance"
	auditmemory "celebrate/pkg/platform/audit/store/memory"
)

var completeProfile = compliance.Profile{
	FirstName: "Ada", LastName: "Lovelace", Address: "1 Main St", City: "Albany",
	State: "ny", Zip: "12207", Country: compliance.CountryDomestic,
}

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	audit   *auditmemory.InMemoryStore
	service *Service
	donor   domain.DonorID
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.audit = auditmemory.NewInMemoryStore()
	s.service = New(s.store, WithAuditPublisher(compliancepub.New(s.audit)))
	s.donor = domain.DonorID(uuid.New())
	s.ctx = context.Background()
}

func (s *ServiceSuite) TestUpdateClassifies() {
	s.Run("incomplete profile is guest", func() {
		p, err := s.service.Update(s.ctx, s.donor, compliance.Profile{FirstName: "Ada"})
		s.Require().NoError(err)
		s.Equal(compliance.TierGuest, p.Compliance)
	})
	s.Run("completing the profile promotes and audits", func() {
		p, err := s.service.Update(s.ctx, s.donor, completeProfile)
		s.Require().NoError(err)
		s.Equal(compliance.TierCompliant, p.Compliance)
		s.Equal("NY", p.Fields.State)

		events, err := s.audit.ListAll(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventDonorTierRaised), events[0].Action)
		s.Equal(s.donor, events[0].DonorID)
	})
}

func (s *ServiceSuite) TestRatchetNeverDemotes() {
	_, err := s.service.Update(s.ctx, s.donor, completeProfile)
	s.Require().NoError(err)

	incomplete := completeProfile
	incomplete.Zip = ""
	p, err := s.service.Update(s.ctx, s.donor, incomplete)
	s.Require().NoError(err)
	s.Equal(compliance.TierCompliant, p.Compliance)
	s.Equal("", p.Fields.Zip)

	_, tier, err := s.service.Tier(s.ctx, s.donor)
	s.Require().NoError(err)
	s.Equal(compliance.TierCompliant, tier)
}

func (s *ServiceSuite) TestTierPersistsFreshPromotion() {
	s.Require().NoError(s.store.SaveFields(s.ctx, &profile.Profile{
		DonorID:    s.donor,
		Fields:     completeProfile,
		Compliance: compliance.TierGuest,
	}))

	_, tier, err := s.service.Tier(s.ctx, s.donor)
	s.Require().NoError(err)
	s.Equal(compliance.TierCompliant, tier)

	stored, err := s.store.FindByDonor(s.ctx, s.donor)
	s.Require().NoError(err)
	s.Equal(compliance.TierCompliant, stored.Compliance)
}

func (s *ServiceSuite) TestTierWithoutProfileIsGuest() {
	p, tier, err := s.service.Tier(s.ctx, s.donor)
	s.Require().NoError(err)
	s.Equal(compliance.TierGuest, tier)
	s.Equal(s.donor, p.DonorID)
}

func (s *ServiceSuite) TestGetNotFound() {
	_, err := s.service.Get(s.ctx, s.donor)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
