package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"celebrate/internal/compliance"
	"celebrate/internal/profile"
	"celebrate/pkg/domain"
	"celebrate/pkg/platform/sentinel"
	txcontext "celebrate/pkg/platform/tx"
)

// PostgresStore persists profiles in donor_profiles. The compliance_rank
// column lets the ratchet be a single conditional UPDATE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `donor_id, first_name, last_name, address, city, state, zip, country,
	foreign_id, employed, occupation, employer, compliance, updated_at`

func (s *PostgresStore) FindByDonor(ctx context.Context, donorID domain.DonorID) (*profile.Profile, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM donor_profiles WHERE donor_id = $1`, uuid.UUID(donorID))
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find donor profile: %w", err)
	}
	return p, nil
}

// SaveFields upserts editable fields. On conflict the tier is only raised.
func (s *PostgresStore) SaveFields(ctx context.Context, p *profile.Profile) error {
	tier := p.Compliance
	if !tier.IsValid() {
		tier = compliance.TierGuest
	}
	f := p.Fields
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO donor_profiles (`+profileColumns+`, compliance_rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (donor_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			zip = EXCLUDED.zip,
			country = EXCLUDED.country,
			foreign_id = EXCLUDED.foreign_id,
			employed = EXCLUDED.employed,
			occupation = EXCLUDED.occupation,
			employer = EXCLUDED.employer,
			updated_at = EXCLUDED.updated_at,
			compliance = CASE WHEN EXCLUDED.compliance_rank > donor_profiles.compliance_rank
				THEN EXCLUDED.compliance ELSE donor_profiles.compliance END,
			compliance_rank = GREATEST(donor_profiles.compliance_rank, EXCLUDED.compliance_rank)
	`,
		uuid.UUID(p.DonorID), f.FirstName, f.LastName, f.Address, f.City, f.State, f.Zip, f.Country,
		f.ForeignID, f.Employed, f.Occupation, f.Employer, string(tier), p.UpdatedAt, tier.Rank(),
	)
	if err != nil {
		return fmt.Errorf("save donor profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) RaiseCompliance(ctx context.Context, donorID domain.DonorID, tier compliance.TierName) (compliance.TierName, error) {
	var stored string
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		UPDATE donor_profiles
		SET compliance = CASE WHEN compliance_rank < $3 THEN $2 ELSE compliance END,
			compliance_rank = GREATEST(compliance_rank, $3)
		WHERE donor_id = $1
		RETURNING compliance
	`, uuid.UUID(donorID), string(tier), tier.Rank()).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("raise donor compliance: %w", err)
	}
	return compliance.ParseTierName(stored)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*profile.Profile, error) {
	var (
		p    profile.Profile
		id   uuid.UUID
		tier string
	)
	f := &p.Fields
	if err := row.Scan(&id, &f.FirstName, &f.LastName, &f.Address, &f.City, &f.State, &f.Zip, &f.Country,
		&f.ForeignID, &f.Employed, &f.Occupation, &f.Employer, &tier, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.DonorID = domain.DonorID(id)
	t, err := compliance.ParseTierName(tier)
	if err != nil {
		return nil, err
	}
	p.Compliance = t
	return &p, nil
}
