package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"anonpoll/internal/attestation/handler/mocks"
	"anonpoll/internal/attestation/models"
	dErrors "anonpoll/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/attestation-mocks.go -package=mocks Service
type AttestationHandlerSuite struct {
	suite.Suite
}

func TestAttestationHandlerSuite(t *testing.T) {
	suite.Run(t, new(AttestationHandlerSuite))
}

func newTestRouter(t *testing.T) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	svc := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	New(svc, logger, "admin-secret").Register(r)
	return r, svc
}

func do(r http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func (s *AttestationHandlerSuite) TestHandleIssue() {
	s.Run("requires the admin token", func() {
		r, _ := newTestRouter(s.T())
		w := do(r, "/attestations", `{"subject_key_material":"x"}`, nil)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("issues a session credential", func() {
		r, svc := newTestRouter(s.T())
		expires := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
		svc.EXPECT().Issue(gomock.Any(), models.IssueRequest{
			SubjectKeyMaterial: "subject-1",
			Snapshot: models.DemographicSnapshot{
				Gender:      "f",
				RegionCodes: []string{"ES-MD"},
			},
		}).Return(models.Credential{Token: "signed", Kind: models.KindSession, ExpiresAt: expires}, nil)

		w := do(r, "/attestations",
			`{"subject_key_material":" subject-1 ","gender":"f","region_codes":["ES-MD"]}`,
			map[string]string{"X-Admin-Token": "admin-secret"})
		s.Require().Equal(http.StatusCreated, w.Code)

		var resp CredentialResponse
		require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal("signed", resp.Attestation)
		s.Equal("session", resp.Kind)
		s.Equal("2026-01-08T00:00:00Z", resp.ExpiresAt)
	})

	s.Run("unknown fields are rejected", func() {
		r, _ := newTestRouter(s.T())
		w := do(r, "/attestations", `{"subject_key_material":"x","name":"Alice"}`,
			map[string]string{"X-Admin-Token": "admin-secret"})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *AttestationHandlerSuite) TestHandleVoteIntent() {
	s.Run("requires a bearer credential", func() {
		r, _ := newTestRouter(s.T())
		w := do(r, "/attestations/vote-intent", `{}`, nil)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("fills the current bucket and forwards the session", func() {
		r, svc := newTestRouter(s.T())
		svc.EXPECT().CurrentBucket(gomock.Any()).Return("29000000")
		svc.EXPECT().IssueVoteIntent(gomock.Any(), models.VoteIntentRequest{
			SessionToken:    "session-token",
			ChallengeNonce:  "nonce-1",
			PollID:          "poll-1",
			OptionID:        "opt-a",
			TimestampBucket: "29000000",
		}).Return(models.Credential{Token: "intent", Kind: models.KindVoteIntent}, nil)

		w := do(r, "/attestations/vote-intent",
			`{"challenge_nonce":"nonce-1","poll_id":"poll-1","option_id":"opt-a"}`,
			map[string]string{"Authorization": "Bearer session-token"})
		s.Require().Equal(http.StatusCreated, w.Code)

		var resp CredentialResponse
		require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal("intent", resp.Attestation)
		s.Equal("29000000", resp.TimestampBucket)
	})

	s.Run("consumed challenge maps to 401", func() {
		r, svc := newTestRouter(s.T())
		svc.EXPECT().IssueVoteIntent(gomock.Any(), gomock.Any()).
			Return(models.Credential{}, dErrors.New(dErrors.CodeExpiredOrInvalidNonce, "challenge nonce is expired or invalid"))

		w := do(r, "/attestations/vote-intent",
			`{"challenge_nonce":"n","poll_id":"p","option_id":"o","timestamp_bucket":"1"}`,
			map[string]string{"Authorization": "Bearer session-token"})
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Contains(w.Body.String(), "expired_or_invalid_nonce")
	})
}
