package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"celebrate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: pledges,
	// captures, and voids. These are persisted fail-closed.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine lifecycle activity.
	CategoryOperations EventCategory = "operations"
)

// AuditEvent names a lifecycle action.
type AuditEvent string

const (
	EventCelebrationCreated  AuditEvent = "celebration_created"
	EventCelebrationPaused   AuditEvent = "celebration_paused"
	EventCelebrationResumed  AuditEvent = "celebration_resumed"
	EventCelebrationResolved AuditEvent = "celebration_resolved"
	EventCelebrationDefunct  AuditEvent = "celebration_defunct"
	EventCaptureFailed       AuditEvent = "capture_failed"
	EventCapturePending      AuditEvent = "capture_pending"
	EventAuthorizationVoided AuditEvent = "authorization_voided"
	EventDonorTierRaised     AuditEvent = "donor_tier_raised"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCelebrationCreated:  CategoryCompliance,
	EventCelebrationResolved: CategoryCompliance,
	EventCelebrationDefunct:  CategoryCompliance,
	EventAuthorizationVoided: CategoryCompliance,
	EventDonorTierRaised:     CategoryCompliance,

	EventCelebrationPaused:  CategoryOperations,
	EventCelebrationResumed: CategoryOperations,
	EventCaptureFailed:      CategoryOperations,
	EventCapturePending:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID            uuid.UUID
	Category      EventCategory
	Timestamp     time.Time
	CelebrationID domain.CelebrationID
	DonorID       domain.DonorID
	Action        string
	FromStatus    string
	ToStatus      string
	Reason        string
	Amount        domain.Money
	RequestID     string
	// ActorID is "donor:<id>", "operator", or a background job name.
	ActorID string
}

// Store persists audit events. Postgres writes to the outbox inside the
// ambient transaction; memory keeps events for tests and dev.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByCelebration(ctx context.Context, id domain.CelebrationID) ([]Event, error)
}
