// Package service serves poll results and the security summary under
// k-anonymity. Suppression and overlap denial are normal outcomes; only a
// storage fault is an error.
package service

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	attmodels "anonpoll/internal/attestation/models"
	"anonpoll/internal/disclosure/metrics"
	"anonpoll/internal/disclosure/models"
	"anonpoll/internal/disclosure/suppression"
	pollmodels "anonpoll/internal/poll/models"
	dErrors "anonpoll/pkg/domain-errors"
	audit "anonpoll/pkg/platform/audit"
	"anonpoll/pkg/requestcontext"
)

// Store reads every count for one request from a single snapshot.
type Store interface {
	Tally(ctx context.Context, pollID string, dims []attmodels.Dimension) (models.Tally, error)
}

// PollReader returns CodeNotFound for unknown polls.
type PollReader interface {
	Get(ctx context.Context, id string) (*pollmodels.Poll, error)
}

// Guard is the per-poll dimension record.
type Guard interface {
	CheckAndRecord(ctx context.Context, pollID string, dims []attmodels.Dimension) (bool, error)
	Reset(ctx context.Context, pollID string) error
}

type SecurityStore interface {
	SummarizeSecurity(ctx context.Context, f audit.SummaryFilter) ([]audit.Cell, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config holds the disclosure thresholds.
type Config struct {
	K                 int
	MinVisibleCohorts int
	QueryTimeout      time.Duration
}

type Service struct {
	store    Store
	polls    PollReader
	guard    Guard
	security SecurityStore
	auditor  AuditPublisher
	rules    suppression.Rules
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

// WithSecurityStore enables the security events summary.
func WithSecurityStore(st SecurityStore) Option {
	return func(s *Service) { s.security = st }
}

func New(cfg Config, store Store, polls PollReader, guard Guard, opts ...Option) *Service {
	if cfg.MinVisibleCohorts <= 0 {
		cfg.MinVisibleCohorts = 3
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 3 * time.Second
	}
	s := &Service{
		store:   store,
		polls:   polls,
		guard:   guard,
		rules:   suppression.Rules{K: cfg.K, MinVisibleCohorts: cfg.MinVisibleCohorts},
		timeout: cfg.QueryTimeout,
		logger:  slog.New(slog.DiscardHandler),
		tracer:  otel.Tracer("anonpoll/internal/disclosure"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPollResults returns suppressed results for pollID, with one breakdown
// per requested dimension. The dimension set is checked against the poll's
// record as a whole; a denial marks every requested dimension denied.
func (s *Service) GetPollResults(ctx context.Context, pollID string, dims []attmodels.Dimension) (*models.PollResults, error) {
	ctx, span := s.tracer.Start(ctx, "disclosure.GetPollResults",
		trace.WithAttributes(attribute.String("poll.id", pollID), attribute.Int("disclosure.dimensions", len(dims))))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveQuery(time.Since(start)) }()

	dims, err := normalizeDimensions(dims)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	poll, err := s.polls.Get(ctx, pollID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.metrics.IncQuery("error")
		}
		return nil, err
	}

	tally, err := s.store.Tally(ctx, pollID, dims)
	if err != nil {
		s.metrics.IncQuery("error")
		s.logger.ErrorContext(ctx, "failed to tally poll",
			"request_id", requestcontext.RequestID(ctx),
			"poll_id", pollID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read poll results")
	}

	out := &models.PollResults{PollID: pollID, Options: []models.OptionResult{}}
	if !s.rules.TotalVisible(tally.Total) {
		out.Suppressed = true
		s.metrics.IncQuery("small_poll")
		s.metrics.AddSuppressed("option", len(poll.Options))
		return out, nil
	}
	out.TotalVotes = ptr(tally.Total)
	out.Options = s.options(poll, tally)

	if len(dims) > 0 {
		breakdowns, err := s.breakdowns(ctx, pollID, dims, tally)
		if err != nil {
			s.metrics.IncQuery("error")
			return nil, err
		}
		out.Breakdowns = breakdowns
	}
	s.metrics.IncQuery("served")
	return out, nil
}

// options reports every configured option in poll order, including options
// with no votes, so the response shape never depends on the counts.
func (s *Service) options(poll *pollmodels.Poll, tally models.Tally) []models.OptionResult {
	cells := make([]suppression.Cell, len(poll.Options))
	for i, o := range poll.Options {
		cells[i] = suppression.Cell{Key: o.ID, Count: tally.Options[o.ID]}
	}
	results := s.rules.Options(cells, tally.Total)
	out := make([]models.OptionResult, len(results))
	hidden := 0
	for i, r := range results {
		if r.Suppressed {
			hidden++
			out[i] = models.OptionResult{OptionID: r.Key, Suppressed: true}
			continue
		}
		out[i] = models.OptionResult{OptionID: r.Key, Count: ptr(r.Count), Percentage: ptr(r.Percentage)}
	}
	s.metrics.AddSuppressed("option", hidden)
	return out
}

func (s *Service) breakdowns(ctx context.Context, pollID string, dims []attmodels.Dimension, tally models.Tally) ([]models.Breakdown, error) {
	allowed, err := s.guard.CheckAndRecord(ctx, pollID, dims)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to check dimension record",
			"request_id", requestcontext.RequestID(ctx),
			"poll_id", pollID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to check query history")
	}

	out := make([]models.Breakdown, len(dims))
	if !allowed {
		s.metrics.IncOverlapDenied()
		for i, dim := range dims {
			out[i] = models.Breakdown{Dimension: dim, Denied: string(dErrors.CodeQueryOverlapDenied)}
			s.logger.WarnContext(ctx, "breakdown denied as overlapping query",
				"request_id", requestcontext.RequestID(ctx),
				"poll_id", pollID,
				"dimension", dim,
			)
			s.emit(ctx, audit.Event{
				Action:   string(audit.EventQueryOverlapDenied),
				Severity: audit.SeverityWarning,
				PollID:   pollID,
				Reason:   string(dErrors.CodeQueryOverlapDenied) + ":" + string(dim),
			})
		}
		return out, nil
	}

	for i, dim := range dims {
		counts := tally.Cohorts[dim]
		cells := make([]suppression.Cell, 0, len(counts))
		for value, n := range counts {
			cells = append(cells, suppression.Cell{Key: value, Count: n})
		}
		suppression.SortCells(cells)

		results, whole := s.rules.Cohorts(cells, tally.Total)
		b := models.Breakdown{Dimension: dim, Suppressed: whole, Cohorts: []models.Cohort{}}
		if whole {
			s.metrics.AddSuppressed("dimension", 1)
			out[i] = b
			continue
		}
		hidden := 0
		for _, r := range results {
			if r.Suppressed {
				hidden++
				b.Cohorts = append(b.Cohorts, models.Cohort{Value: r.Key, Suppressed: true})
				continue
			}
			b.Cohorts = append(b.Cohorts, models.Cohort{Value: r.Key, Count: ptr(r.Count), Percentage: ptr(r.Percentage)})
		}
		s.metrics.AddSuppressed("cohort", hidden)
		out[i] = b
	}
	return out, nil
}

// GetSecurityEventsSummary aggregates security events by action and
// severity. Cells below k lose their count and timestamps. The total is
// withheld when it is below k or when the hidden cells add up to less
// than k.
func (s *Service) GetSecurityEventsSummary(ctx context.Context, f models.SecurityFilter) (*models.SecuritySummary, error) {
	ctx, span := s.tracer.Start(ctx, "disclosure.GetSecurityEventsSummary")
	defer span.End()

	if s.security == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "security summary is not configured")
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Since.Before(f.Until) {
		return nil, dErrors.New(dErrors.CodeValidation, "since must be before until")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cells, err := s.security.SummarizeSecurity(ctx, audit.SummaryFilter{
		Since:    f.Since,
		Until:    f.Until,
		Severity: audit.Severity(f.Severity),
		Action:   f.Action,
		PollID:   f.PollID,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to summarize security events",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read security events")
	}

	out := &models.SecuritySummary{Events: make([]models.SecurityEventCell, len(cells))}
	total, hidden, hiddenMass := 0, 0, 0
	for i, c := range cells {
		total += c.Count
		cell := models.SecurityEventCell{Action: c.Action, Severity: string(c.Severity)}
		if c.Count < s.rules.K {
			cell.Suppressed = true
			hidden++
			hiddenMass += c.Count
		} else {
			cell.Count = ptr(c.Count)
			cell.FirstSeen = ptr(c.FirstSeen.UTC())
			cell.LastSeen = ptr(c.LastSeen.UTC())
		}
		out.Events[i] = cell
	}
	if s.rules.TotalWithHidden(total, hiddenMass) {
		out.Total = ptr(total)
	} else {
		out.Suppressed = true
	}
	s.metrics.AddSuppressed("security", hidden)
	return out, nil
}

// PollClosed clears the poll's dimension record. It is idempotent so both
// the in-process hook and the lifecycle consumer may call it.
func (s *Service) PollClosed(ctx context.Context, pollID string) error {
	if err := s.guard.Reset(ctx, pollID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to reset query history")
	}
	s.logger.InfoContext(ctx, "dimension record cleared", "poll_id", pollID)
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventDimensionRecordReset),
		Severity: audit.SeverityInfo,
		PollID:   pollID,
	})
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

// normalizeDimensions rejects unknown names and drops duplicates, keeping
// the caller's order.
func normalizeDimensions(dims []attmodels.Dimension) ([]attmodels.Dimension, error) {
	out := make([]attmodels.Dimension, 0, len(dims))
	for _, d := range dims {
		parsed, ok := attmodels.ParseDimension(string(d))
		if !ok {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown breakdown dimension: "+string(d))
		}
		if !slices.Contains(out, parsed) {
			out = append(out, parsed)
		}
	}
	return out, nil
}

func ptr[T any](v T) *T { return &v }
