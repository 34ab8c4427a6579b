package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"celebrate/internal/celebration/models"
	"celebrate/pkg/domain"
	"celebrate/pkg/platform/sentinel"
	txcontext "celebrate/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists celebrations in a single row per pledge. The ledger
// and donor snapshot are JSONB; last_sequence mirrors the ledger tail so a
// transition can be guarded without decoding it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const celebrationColumns = `id, donor_id, candidate_id, candidate_state, bill_id, amount_cents, tip_cents,
	authorization_id, idempotency_key, snapshot, status, ledger, last_sequence,
	created_at, expires_at, resolved_at, defunct_at, defunct_reason, capture_id`

// Create serializes creates per donor with a transaction-scoped advisory
// lock, so the history check and the insert see the same rows.
func (s *PostgresStore) Create(ctx context.Context, c *models.Celebration, check CreateCheck) (*models.Celebration, error) {
	var existing *models.Celebration
	err := txcontext.RunInTx(ctx, s.db, func(txCtx context.Context) error {
		if err := s.lockDonor(txCtx, c.DonorID); err != nil {
			return err
		}

		found, err := s.FindByIdempotencyKey(txCtx, c.IdempotencyKey)
		switch {
		case err == nil:
			existing = found
			return sentinel.ErrAlreadyUsed
		case !errors.Is(err, sentinel.ErrNotFound):
			return err
		}

		if check != nil {
			history, err := s.Find(txCtx, Filter{DonorID: c.DonorID})
			if err != nil {
				return err
			}
			if err := check(history); err != nil {
				return err
			}
		}
		return s.insert(txCtx, c)
	})
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		return existing, sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (s *PostgresStore) insert(ctx context.Context, c *models.Celebration) error {
	snapshot, err := json.Marshal(c.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	ledger, err := json.Marshal(c.Ledger)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO celebrations (`+celebrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		uuid.UUID(c.ID), uuid.UUID(c.DonorID), string(c.CandidateID), c.CandidateState, string(c.BillID),
		c.Amount.Cents(), c.Tip.Cents(), c.AuthorizationID, string(c.IdempotencyKey),
		snapshot, string(c.Status), ledger, c.Ledger.LastSequence(),
		c.CreatedAt, nullTime(c.ExpiresAt), c.ResolvedAt, c.DefunctAt, c.DefunctReason, c.CaptureID,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("insert celebration: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.CelebrationID) (*models.Celebration, error) {
	return s.findOne(ctx, `id = $1`, uuid.UUID(id))
}

func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, key domain.IdempotencyKey) (*models.Celebration, error) {
	return s.findOne(ctx, `idempotency_key = $1`, string(key))
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Celebration, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+celebrationColumns+` FROM celebrations WHERE `+where, arg)
	c, err := scanCelebration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find celebration: %w", err)
	}
	return c, nil
}

// ConditionalUpdate writes the mutable columns only when both the status and
// the ledger tail are still what the caller read.
func (s *PostgresStore) ConditionalUpdate(ctx context.Context, c *models.Celebration, expected models.Status) error {
	ledger, err := json.Marshal(c.Ledger)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE celebrations
		SET status = $3, ledger = $4, last_sequence = $5,
			resolved_at = $6, defunct_at = $7, defunct_reason = $8, capture_id = $9
		WHERE id = $1 AND status = $2 AND last_sequence = $10
	`,
		uuid.UUID(c.ID), string(expected), string(c.Status), ledger, c.Ledger.LastSequence(),
		c.ResolvedAt, c.DefunctAt, c.DefunctReason, c.CaptureID, c.Ledger.LastSequence()-1,
	)
	if err != nil {
		return fmt.Errorf("update celebration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update celebration: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindByID(ctx, c.ID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

// ConditionalUpdateChecked takes the donor's advisory lock before reading
// history, so it serializes with Create and with other checked updates.
func (s *PostgresStore) ConditionalUpdateChecked(ctx context.Context, c *models.Celebration, expected models.Status, check CreateCheck) error {
	return txcontext.RunInTx(ctx, s.db, func(txCtx context.Context) error {
		if err := s.lockDonor(txCtx, c.DonorID); err != nil {
			return err
		}
		if check != nil {
			history, err := s.Find(txCtx, Filter{DonorID: c.DonorID})
			if err != nil {
				return err
			}
			if err := check(history); err != nil {
				return err
			}
		}
		return s.ConditionalUpdate(txCtx, c, expected)
	})
}

func (s *PostgresStore) lockDonor(ctx context.Context, donorID domain.DonorID) error {
	if _, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, donorID.String()); err != nil {
		return fmt.Errorf("lock donor: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, filter Filter) ([]*models.Celebration, error) {
	where, args := filterClause(filter)
	query := `SELECT ` + celebrationColumns + ` FROM celebrations` + where + ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find celebrations: %w", err)
	}
	defer rows.Close()

	var out []*models.Celebration
	for rows.Next() {
		c, err := scanCelebration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan celebration: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find celebrations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListBills(ctx context.Context, statuses []models.Status) ([]domain.BillID, error) {
	where, args := filterClause(Filter{Statuses: statuses})
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT DISTINCT bill_id FROM celebrations`+where+` ORDER BY bill_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var bills []domain.BillID
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		bills = append(bills, domain.BillID(b))
	}
	return bills, rows.Err()
}

func filterClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.DonorID.IsNil() {
		add("donor_id = $%d", uuid.UUID(f.DonorID))
	}
	if f.BillID != "" {
		add("bill_id = $%d", string(f.BillID))
	}
	if f.AuthorizationID != "" {
		add("authorization_id = $%d", f.AuthorizationID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", pq.Array(statuses))
	}
	if !f.ExpiresBefore.IsZero() {
		add("expires_at < $%d", f.ExpiresBefore)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCelebration(row rowScanner) (*models.Celebration, error) {
	var (
		c                     models.Celebration
		id, donorID           uuid.UUID
		candidate, bill, key  string
		status                string
		amount, tip           int64
		snapshot, ledger      []byte
		lastSequence          int
		expiresAt             sql.NullTime
		resolvedAt, defunctAt sql.NullTime
	)
	if err := row.Scan(&id, &donorID, &candidate, &c.CandidateState, &bill, &amount, &tip,
		&c.AuthorizationID, &key, &snapshot, &status, &ledger, &lastSequence,
		&c.CreatedAt, &expiresAt, &resolvedAt, &defunctAt, &c.DefunctReason, &c.CaptureID); err != nil {
		return nil, err
	}
	st, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &c.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := json.Unmarshal(ledger, &c.Ledger); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	if c.Ledger.LastSequence() != lastSequence {
		return nil, fmt.Errorf("%w: last_sequence %d, ledger tail %d", models.ErrLedgerTampered, lastSequence, c.Ledger.LastSequence())
	}

	c.ID = domain.CelebrationID(id)
	c.DonorID = domain.DonorID(donorID)
	c.CandidateID = domain.CandidateID(candidate)
	c.BillID = domain.BillID(bill)
	c.IdempotencyKey = domain.IdempotencyKey(key)
	c.Amount = domain.Money(amount)
	c.Tip = domain.Money(tip)
	c.Status = st
	c.CreatedAt = c.CreatedAt.UTC()
	if expiresAt.Valid {
		c.ExpiresAt = expiresAt.Time.UTC()
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		c.ResolvedAt = &t
	}
	if defunctAt.Valid {
		t := defunctAt.Time.UTC()
		c.DefunctAt = &t
	}
	return &c, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
