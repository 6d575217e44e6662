package handler

import (
	"net/url"
	"strings"
	"time"

	attmodels "anonpoll/internal/attestation/models"
	"anonpoll/internal/disclosure/models"
	dErrors "anonpoll/pkg/domain-errors"
	audit "anonpoll/pkg/platform/audit"
	strutil "anonpoll/pkg/platform/strings"
)

// parseBreakdown accepts repeated and comma separated breakdown values.
func parseBreakdown(values []string) ([]attmodels.Dimension, error) {
	var out []attmodels.Dimension
	for _, part := range strutil.SplitList(values...) {
		d, ok := attmodels.ParseDimension(part)
		if !ok {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown breakdown dimension: "+part)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseSecurityFilter(q url.Values) (models.SecurityFilter, error) {
	f := models.SecurityFilter{
		Action: strings.TrimSpace(q.Get("action")),
		PollID: strings.TrimSpace(q.Get("poll_id")),
	}
	if sev := strings.ToLower(strings.TrimSpace(q.Get("severity"))); sev != "" {
		switch audit.Severity(sev) {
		case audit.SeverityInfo, audit.SeverityWarning, audit.SeverityCritical:
			f.Severity = sev
		default:
			return f, dErrors.New(dErrors.CodeValidation, "severity must be one of info, warning, critical")
		}
	}
	var err error
	if f.Since, err = parseTime(q.Get("since"), "since"); err != nil {
		return f, err
	}
	if f.Until, err = parseTime(q.Get("until"), "until"); err != nil {
		return f, err
	}
	return f, nil
}

func parseTime(s, field string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, field+" must be an RFC 3339 timestamp")
	}
	return t, nil
}
