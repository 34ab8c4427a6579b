package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"celebrate/pkg/domain"
	audit "celebrate/pkg/platform/audit"
	txcontext "celebrate/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and relayed to Kafka.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Timestamp     string `json:"timestamp"`
	CelebrationID string `json:"celebration_id,omitempty"`
	DonorID       string `json:"donor_id,omitempty"`
	Action        string `json:"action"`
	FromStatus    string `json:"from_status,omitempty"`
	ToStatus      string `json:"to_status,omitempty"`
	Reason        string `json:"reason,omitempty"`
	AmountCents   int64  `json:"amount_cents,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	ActorID       string `json:"actor_id,omitempty"`
}

func toPayload(event audit.Event) outboxPayload {
	p := outboxPayload{
		ID:          event.ID.String(),
		Category:    string(event.Category),
		Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:      event.Action,
		FromStatus:  event.FromStatus,
		ToStatus:    event.ToStatus,
		Reason:      event.Reason,
		AmountCents: event.Amount.Cents(),
		RequestID:   event.RequestID,
		ActorID:     event.ActorID,
	}
	if !event.CelebrationID.IsNil() {
		p.CelebrationID = event.CelebrationID.String()
	}
	if !event.DonorID.IsNil() {
		p.DonorID = event.DonorID.String()
	}
	return p
}

func fromPayload(p outboxPayload) (audit.Event, error) {
	event := audit.Event{
		Category:   audit.EventCategory(p.Category),
		Action:     p.Action,
		FromStatus: p.FromStatus,
		ToStatus:   p.ToStatus,
		Reason:     p.Reason,
		Amount:     domain.Money(p.AmountCents),
		RequestID:  p.RequestID,
		ActorID:    p.ActorID,
	}
	var err error
	if event.ID, err = uuid.Parse(p.ID); err != nil {
		return audit.Event{}, fmt.Errorf("parse event id: %w", err)
	}
	if event.Timestamp, err = time.Parse(time.RFC3339Nano, p.Timestamp); err != nil {
		return audit.Event{}, fmt.Errorf("parse event timestamp: %w", err)
	}
	if p.CelebrationID != "" {
		if event.CelebrationID, err = domain.ParseCelebrationID(p.CelebrationID); err != nil {
			return audit.Event{}, err
		}
	}
	if p.DonorID != "" {
		if event.DonorID, err = domain.ParseDonorID(p.DonorID); err != nil {
			return audit.Event{}, err
		}
	}
	return event, nil
}

// Append writes an audit event to the outbox table for Kafka publishing.
// Inside RunInTx the insert joins the caller's transaction.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	payloadBytes, err := json.Marshal(toPayload(event))
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "celebration"
	aggregateID := event.CelebrationID.String()
	if event.CelebrationID.IsNil() {
		aggregateType = "donor"
		aggregateID = event.DonorID.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByCelebration returns events recorded for a celebration, oldest first.
func (s *Store) ListByCelebration(ctx context.Context, id domain.CelebrationID) ([]audit.Event, error) {
	query := `
		SELECT payload
		FROM outbox
		WHERE aggregate_type = 'celebration' AND aggregate_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, id.String())
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		var p outboxPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode outbox payload: %w", err)
		}
		event, err := fromPayload(p)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return events, nil
}

// OutboxEntry is an unpublished outbox row.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
}

// FetchUnpublished returns up to limit unpublished entries in insertion order.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps published_at on the given entries.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`,
		at, pq.Array(strs),
	)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
