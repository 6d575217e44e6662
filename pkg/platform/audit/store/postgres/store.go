package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "anonpoll/pkg/platform/audit"
	txcontext "anonpoll/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Each event lands in audit_events (queried by the security summary) and in
// outbox (relayed to Kafka). When ctx carries a transaction both inserts join it.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Severity  string `json:"severity"`
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	Subject   string `json:"subject,omitempty"`
	PollID    string `json:"poll_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Aggregate types routed by the relay.
const (
	AggregateAudit         = "audit"
	AggregatePollLifecycle = "poll_lifecycle"
)

// OutboxEntry is an unpublished outbox row.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Append writes the event and its outbox row in one transaction, joining
// the caller's transaction when ctx carries one.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if _, ok := txcontext.From(ctx); !ok {
		return txcontext.Run(ctx, s.db, nil, func(ctx context.Context) error {
			return s.Append(ctx, event)
		})
	}
	eventID := uuid.New()
	exec := txcontext.Executor(ctx, s.db)

	_, err := exec.ExecContext(ctx, `
		INSERT INTO audit_events (id, category, severity, action, subject, poll_id, reason, request_id, ip, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		eventID,
		string(event.Category),
		string(event.Severity),
		event.Action,
		event.Subject,
		event.PollID,
		event.Reason,
		event.RequestID,
		event.IP,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	// IP stays out of the outbox: downstream consumers get no network identifiers.
	payload, err := json.Marshal(outboxPayload{
		ID:        eventID.String(),
		Category:  string(event.Category),
		Severity:  string(event.Severity),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:    event.Action,
		Subject:   event.Subject,
		PollID:    event.PollID,
		Reason:    event.Reason,
		RequestID: event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateID := event.PollID
	if aggregateID == "" {
		aggregateID = eventID.String()
	}
	return Enqueue(ctx, s.db, AggregateAudit, aggregateID, event.Action, payload)
}

// Enqueue writes one outbox row, joining the transaction in ctx if any.
// Other modules use it to publish their own events through the relay.
func Enqueue(ctx context.Context, db *sql.DB, aggregateType, aggregateID, eventType string, payload []byte) error {
	_, err := txcontext.Executor(ctx, db).ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), aggregateType, aggregateID, eventType, payload, time.Now())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// AppendWithID materializes an externally produced event. Duplicate deliveries
// are ignored so the Kafka consumer can be at-least-once.
func (s *Store) AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, category, severity, action, subject, poll_id, reason, request_id, ip, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`,
		eventID,
		string(event.Category),
		string(event.Severity),
		event.Action,
		event.Subject,
		event.PollID,
		event.Reason,
		event.RequestID,
		event.IP,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// SummarizeSecurity aggregates security events by action and severity in one statement.
func (s *Store) SummarizeSecurity(ctx context.Context, f audit.SummaryFilter) ([]audit.Cell, error) {
	where := []string{"category = $1"}
	args := []any{string(audit.CategorySecurity)}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !f.Since.IsZero() {
		add("occurred_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("occurred_at < $%d", f.Until)
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.PollID != "" {
		add("poll_id = $%d", f.PollID)
	}

	query := `
		SELECT action, severity, COUNT(*), MIN(occurred_at), MAX(occurred_at)
		FROM audit_events
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY action, severity
		ORDER BY action, severity
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize security events: %w", err)
	}
	defer rows.Close()

	var cells []audit.Cell
	for rows.Next() {
		var c audit.Cell
		var severity string
		if err := rows.Scan(&c.Action, &severity, &c.Count, &c.FirstSeen, &c.LastSeen); err != nil {
			return nil, fmt.Errorf("scan security cell: %w", err)
		}
		c.Severity = audit.Severity(severity)
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security cells: %w", err)
	}
	return cells, nil
}

// ClaimUnpublished locks up to limit unpublished outbox rows, hands them to
// publish, and marks them published when publish succeeds. Rows locked by a
// concurrent relay are skipped.
func (s *Store) ClaimUnpublished(ctx context.Context, limit int, publish func(ctx context.Context, entries []OutboxEntry) error) (int, error) {
	var claimed int
	err := txcontext.Run(ctx, s.db, nil, func(ctx context.Context) error {
		exec := txcontext.Executor(ctx, s.db)
		rows, err := exec.QueryContext(ctx, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
			FROM outbox
			WHERE published_at IS NULL
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return fmt.Errorf("select outbox: %w", err)
		}
		var entries []OutboxEntry
		for rows.Next() {
			var e OutboxEntry
			if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan outbox: %w", err)
			}
			entries = append(entries, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate outbox: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		if err := publish(ctx, entries); err != nil {
			return err
		}

		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID.String()
		}
		if _, err := exec.ExecContext(ctx,
			`UPDATE outbox SET published_at = NOW() WHERE id = ANY($1::uuid[])`,
			pq.Array(ids),
		); err != nil {
			return fmt.Errorf("mark outbox published: %w", err)
		}
		claimed = len(entries)
		return nil
	})
	return claimed, err
}
