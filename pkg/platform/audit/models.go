package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can apply different retention and delivery guarantees.
type EventCategory string

const (
	// CategoryCompliance covers destructive or regulatory-significant actions.
	// Publishing is fail-closed: the business operation fails with the write.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers access-affecting changes such as role grants
	// and disabling a domain.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine creation and updates.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from services to capture identity mutations. It is
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// Subject is the ID of the resource acted upon.
	Subject  string
	DomainID string
	ActorID  string
	Reason   string
	// Counts carries cascade totals for domain deletion, keyed by resource kind.
	Counts    map[string]int
	RequestID string
	ClientIP  string
	UserAgent string
}

type AuditEvent string

const (
	EventDomainCreated  AuditEvent = "domain_created"
	EventDomainUpdated  AuditEvent = "domain_updated"
	EventDomainDisabled AuditEvent = "domain_disabled"
	EventDomainEnabled  AuditEvent = "domain_enabled"
	EventDomainDeleted  AuditEvent = "domain_deleted"

	EventUserCreated    AuditEvent = "user_created"
	EventUserDeleted    AuditEvent = "user_deleted"
	EventGroupCreated   AuditEvent = "group_created"
	EventGroupDeleted   AuditEvent = "group_deleted"
	EventProjectCreated AuditEvent = "project_created"
	EventProjectDeleted AuditEvent = "project_deleted"

	EventRoleCreated AuditEvent = "role_created"
	EventRoleDeleted AuditEvent = "role_deleted"

	EventCredentialCreated AuditEvent = "credential_created"
	EventCredentialDeleted AuditEvent = "credential_deleted"

	EventMembershipAdded   AuditEvent = "membership_added"
	EventMembershipRemoved AuditEvent = "membership_removed"

	EventGrantCreated AuditEvent = "grant_created"
	EventGrantRevoked AuditEvent = "grant_revoked"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDomainDeleted:     CategoryCompliance,
	EventUserDeleted:       CategoryCompliance,
	EventGroupDeleted:      CategoryCompliance,
	EventProjectDeleted:    CategoryCompliance,
	EventCredentialDeleted: CategoryCompliance,

	EventDomainDisabled:    CategorySecurity,
	EventDomainEnabled:     CategorySecurity,
	EventRoleDeleted:       CategorySecurity,
	EventCredentialCreated: CategorySecurity,
	EventMembershipAdded:   CategorySecurity,
	EventMembershipRemoved: CategorySecurity,
	EventGrantCreated:      CategorySecurity,
	EventGrantRevoked:      CategorySecurity,

	EventDomainCreated:  CategoryOperations,
	EventDomainUpdated:  CategoryOperations,
	EventUserCreated:    CategoryOperations,
	EventGroupCreated:   CategoryOperations,
	EventProjectCreated: CategoryOperations,
	EventRoleCreated:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// OutboxEntry is a persisted event awaiting delivery to the event bus.
type OutboxEntry struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}
