package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"anonpoll/internal/platform/kafka/consumer"
	audit "anonpoll/pkg/platform/audit"
)

// SecurityStore materializes externally produced events idempotently.
type SecurityStore interface {
	AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error
}

// SecurityHandler ingests security events produced outside this service,
// such as edge shield blocks, so the security summary covers them.
type SecurityHandler struct {
	store  SecurityStore
	logger *slog.Logger
	now    func() time.Time
}

type SecurityOption func(*SecurityHandler)

// WithClock stamps events that arrive without a timestamp.
func WithClock(now func() time.Time) SecurityOption {
	return func(h *SecurityHandler) { h.now = now }
}

func NewSecurityHandler(store SecurityStore, logger *slog.Logger, opts ...SecurityOption) *SecurityHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &SecurityHandler{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// securityPayload is the JSON published by the edge services. The key of
// the Kafka record carries the event id.
type securityPayload struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	PollID    string `json:"poll_id"`
	Subject   string `json:"subject"`
	Reason    string `json:"reason"`
	IP        string `json:"ip"`
	RequestID string `json:"request_id"`
	Severity  string `json:"severity"`
}

// Handle stores one security event. Malformed messages are logged and
// skipped so they do not block the partition; store failures are returned
// so the offset is not committed.
func (h *SecurityHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	eventID, err := uuid.Parse(string(msg.Key))
	if err != nil {
		h.logger.WarnContext(ctx, "skipping security event without id", "key", string(msg.Key), "error", err)
		return nil
	}
	var p securityPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		h.logger.WarnContext(ctx, "skipping undecodable security event", "event_id", eventID, "error", err)
		return nil
	}

	event := h.toEvent(p)
	if err := h.store.AppendWithID(ctx, eventID, event); err != nil {
		return fmt.Errorf("store security event %s: %w", eventID, err)
	}
	h.logger.DebugContext(ctx, "security event stored",
		"event_id", eventID,
		"action", event.Action,
		"severity", event.Severity,
		"poll_id", event.PollID,
	)
	return nil
}

func (h *SecurityHandler) toEvent(p securityPayload) audit.Event {
	action := p.Action
	if action == "" {
		action = string(audit.EventShieldBlocked)
	}
	ts := h.now().UTC()
	if p.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
			ts = parsed.UTC()
		}
	}
	return audit.Event{
		// Forwarded events count toward the security summary whatever the
		// producer called them.
		Category:  audit.CategorySecurity,
		Severity:  parseSeverity(p.Severity),
		Timestamp: ts,
		Action:    action,
		PollID:    p.PollID,
		Subject:   p.Subject,
		Reason:    p.Reason,
		IP:        p.IP,
		RequestID: p.RequestID,
	}
}

func parseSeverity(s string) audit.Severity {
	switch sev := audit.Severity(s); sev {
	case audit.SeverityWarning, audit.SeverityCritical:
		return sev
	default:
		return audit.SeverityInfo
	}
}
