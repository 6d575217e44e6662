package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anonpoll/internal/platform/config"
	"anonpoll/pkg/testutil"
)

const testAdminToken = "test-admin-token"

func testConfig(k int) config.Config {
	cfg := config.Default()
	cfg.Server.AdminToken = testAdminToken
	cfg.Attestation.SigningKey = "test-signing-key-that-is-long-enough"
	cfg.Attestation.PseudonymKey = "pk"
	cfg.Attestation.NullifierKey = "nk"
	cfg.Disclosure.KThreshold = k
	return cfg
}

func wireTestApp(t *testing.T, cfg config.Config) *app {
	t.Helper()
	a := &app{cfg: cfg, log: slog.New(slog.NewTextHandler(io.Discard, nil)), reg: prometheus.NewRegistry()}
	a.wire()
	t.Cleanup(a.close)
	return a
}

// newTestApp wires every component on the in-memory backends.
func newTestApp(t *testing.T, k int) http.Handler {
	t.Helper()
	return wireTestApp(t, testConfig(k)).router()
}

func TestNonceStoreUsesConfiguredStorageTimeout(t *testing.T) {
	cfg := testConfig(3)
	cfg.Vote.StorageTimeout = 750 * time.Millisecond

	a := wireTestApp(t, cfg)
	assert.Equal(t, 750*time.Millisecond, a.nonceSvc.StoreTimeout())
}

type client struct {
	t *testing.T
	h http.Handler
}

func (c client) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(c.t, method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return testutil.DoRequest(c.h, req)
}

func (c client) admin(method, path string, body any) *httptest.ResponseRecorder {
	return c.do(method, path, body, map[string]string{"X-Admin-Token": testAdminToken})
}

type credential struct {
	Attestation     string `json:"attestation"`
	TimestampBucket string `json:"timestamp_bucket"`
	Nullifier       string `json:"nullifier"`
}

type nonceResponse struct {
	Nonce string `json:"nonce"`
}

func (c client) nonce(purpose string) string {
	rec := c.do(http.MethodPost, "/challenge", map[string]string{"purpose": purpose}, nil)
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	return testutil.UnmarshalResponse[nonceResponse](c.t, rec).Nonce
}

func (c client) session(subject, gender string) string {
	rec := c.admin(http.MethodPost, "/attestations", map[string]any{
		"subject_key_material": subject,
		"gender":               gender,
		"region_codes":         []string{"north"},
	})
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	return testutil.UnmarshalResponse[credential](c.t, rec).Attestation
}

// vote walks challenge, vote intent and submission for one session.
func (c client) vote(session, pollID, optionID string) *httptest.ResponseRecorder {
	rec := c.do(http.MethodPost, "/attestations/vote-intent", map[string]string{
		"challenge_nonce": c.nonce("challenge"),
		"poll_id":         pollID,
		"option_id":       optionID,
	}, map[string]string{"Authorization": "Bearer " + session})
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	intent := testutil.UnmarshalResponse[credential](c.t, rec)
	require.NotEmpty(c.t, intent.Nullifier)

	return c.do(http.MethodPost, "/votes", map[string]string{
		"poll_id":          pollID,
		"option_id":        optionID,
		"nullifier":        intent.Nullifier,
		"timestamp_bucket": intent.TimestampBucket,
		"attestation":      intent.Attestation,
		"nonce":            c.nonce("vote"),
	}, nil)
}

func TestBallotFlow(t *testing.T) {
	c := client{t: t, h: newTestApp(t, 3)}

	rec := c.admin(http.MethodPost, "/admin/polls", map[string]any{
		"id":      "budget",
		"title":   "Budget",
		"options": []map[string]string{{"id": "yes", "label": "Yes"}, {"id": "no", "label": "No"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = c.admin(http.MethodPost, "/admin/polls/budget/state", map[string]string{"state": "active"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sessions := map[string]string{}
	for i, subject := range []string{"alice", "bob", "carol", "dave"} {
		gender := "f"
		if i%2 == 1 {
			gender = "m"
		}
		sessions[subject] = c.session(subject, gender)
	}
	for _, subject := range []string{"alice", "bob", "carol"} {
		rec := c.vote(sessions[subject], "budget", "yes")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"status":"committed"}`, rec.Body.String())
	}
	rec = c.vote(sessions["dave"], "budget", "no")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// A second ballot from the same subject maps to the same nullifier.
	rec = c.vote(sessions["alice"], "budget", "no")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"duplicate"}`, rec.Body.String())

	rec = c.do(http.MethodGet, "/polls/budget/results", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"poll_id": "budget",
		"total_votes": 4,
		"options": [
			{"option_id": "yes", "count": 3, "percentage": 75},
			{"option_id": "no", "count": null, "suppressed": true}
		]
	}`, rec.Body.String())

	rec = c.do(http.MethodGet, "/security-events/summary", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = c.admin(http.MethodGet, "/security-events/summary", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	c := client{t: t, h: newTestApp(t, 30)}

	rec := c.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	c.nonce("challenge")
	rec = c.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "anonpoll_nonce_issued_total"))
}
