package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: a member
	// record came into existence, or an administrator decided on an application.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events worth alerting on, such as orphaned
	// records left behind by failed compensation.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine workflow progress.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// SessionID is the registration session the event belongs to.
	SessionID string
	// Subject is the entity the event is about (member id once created, otherwise the session).
	Subject  string
	Action   string
	Decision string
	Reason   string
	// Email is the applicant's address. Only populated on staging and completion.
	Email     string
	RequestID string
	// ActorID is the administrator for admin operations, empty for applicant actions.
	ActorID     string
	ClientIP    string
	ClientAgent string
}

type AuditEvent string

const (
	EventRegistrationStaged             AuditEvent = "registration_staged"
	EventRegistrationEmailVerified      AuditEvent = "registration_email_verified"
	EventRegistrationVerificationResent AuditEvent = "registration_verification_resent"
	EventRegistrationApproved           AuditEvent = "registration_approved"
	EventRegistrationRejected           AuditEvent = "registration_rejected"
	EventRegistrationEntitiesCreated    AuditEvent = "registration_entities_created"
	EventRegistrationCreationFailed     AuditEvent = "registration_creation_failed"
	EventRegistrationCompensationFailed AuditEvent = "registration_compensation_failed"
	EventRegistrationCompleted          AuditEvent = "registration_completed"
	EventRegistrationCancelled          AuditEvent = "registration_cancelled"
	EventRegistrationExpired            AuditEvent = "registration_expired"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRegistrationApproved:        CategoryCompliance,
	EventRegistrationRejected:        CategoryCompliance,
	EventRegistrationEntitiesCreated: CategoryCompliance,
	EventRegistrationCompleted:       CategoryCompliance,

	EventRegistrationCompensationFailed: CategorySecurity,
	EventRegistrationCreationFailed:     CategorySecurity,

	EventRegistrationStaged:             CategoryOperations,
	EventRegistrationEmailVerified:      CategoryOperations,
	EventRegistrationVerificationResent: CategoryOperations,
	EventRegistrationCancelled:          CategoryOperations,
	EventRegistrationExpired:            CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists or forwards audit events. Implementations: in-memory,
// PostgreSQL outbox, Kafka topic.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by stores that can read events back.
type Lister interface {
	ListBySession(ctx context.Context, sessionID string) ([]Event, error)
}

// OutboxEntry is an event waiting in the outbox, identified by its row id.
type OutboxEntry struct {
	ID    string
	Event Event
}
