package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryLedger covers events tied to the vote ledger. They are written in
	// the same transaction as the vote they describe.
	CategoryLedger EventCategory = "ledger"

	// CategorySecurity covers rejections, replay attempts and query denials.
	// These feed the security events summary and SIEM pipelines.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine issuance activity.
	CategoryOperations EventCategory = "operations"
)

// Severity levels for audit events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is emitted from domain logic to capture key actions. It never carries
// voter identity: Subject holds at most a poll id, a purpose or an IP.
type Event struct {
	Category  EventCategory
	Severity  Severity
	Timestamp time.Time
	Action    string
	Subject   string
	PollID    string
	Reason    string
	RequestID string
	IP        string
}

type AuditEvent string

const (
	// Vote pipeline
	EventVoteCommitted AuditEvent = "vote_committed"
	EventVoteRejected  AuditEvent = "vote_rejected"
	EventVoteDuplicate AuditEvent = "vote_duplicate"

	// Attestation and nonce
	EventCredentialIssued    AuditEvent = "credential_issued"
	EventVoteIntentIssued    AuditEvent = "vote_intent_issued"
	EventAttestationRejected AuditEvent = "attestation_rejected"
	EventNonceRejected       AuditEvent = "nonce_rejected"

	// Disclosure control
	EventQueryOverlapDenied   AuditEvent = "query_overlap_denied"
	EventDimensionRecordReset AuditEvent = "dimension_record_reset"

	// Forwarded from the edge shield
	EventShieldBlocked AuditEvent = "shield_blocked"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventVoteCommitted: CategoryLedger,

	EventVoteRejected:        CategorySecurity,
	EventVoteDuplicate:       CategorySecurity,
	EventAttestationRejected: CategorySecurity,
	EventNonceRejected:       CategorySecurity,
	EventQueryOverlapDenied:  CategorySecurity,
	EventShieldBlocked:       CategorySecurity,

	EventCredentialIssued:     CategoryOperations,
	EventVoteIntentIssued:     CategoryOperations,
	EventDimensionRecordReset: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategorySecurity so they are never under-reported.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategorySecurity
}

// Normalize fills the category, severity and timestamp defaults.
func (e *Event) Normalize(now time.Time) {
	if e.Category == "" {
		e.Category = AuditEvent(e.Action).Category()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
}

// SummaryFilter selects events for the security summary.
type SummaryFilter struct {
	Since    time.Time
	Until    time.Time
	Severity Severity
	Action   string
	PollID   string
}

// Cell is one (action, severity) aggregate of security events.
type Cell struct {
	Action    string
	Severity  Severity
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
