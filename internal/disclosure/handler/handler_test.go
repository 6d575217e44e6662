package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	attmodels "anonpoll/internal/attestation/models"
	"anonpoll/internal/disclosure/handler/mocks"
	"anonpoll/internal/disclosure/models"
	dErrors "anonpoll/pkg/domain-errors"
	"anonpoll/pkg/testutil"
)

const adminToken = "admin-secret"

//go:generate mockgen -source=handler.go -destination=mocks/disclosure-mocks.go -package=mocks Service
type DisclosureHandlerSuite struct {
	suite.Suite
}

func TestDisclosureHandlerSuite(t *testing.T) {
	suite.Run(t, new(DisclosureHandlerSuite))
}

func newTestRouter(t *testing.T) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	svc := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), adminToken).Register(r)
	return r, svc
}

func get(r http.Handler, target string, admin bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if admin {
		req.Header.Set("X-Admin-Token", adminToken)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func (s *DisclosureHandlerSuite) TestHandleResults() {
	s.Run("breakdown values are split and parsed", func() {
		r, svc := newTestRouter(s.T())
		total := 40
		svc.EXPECT().GetPollResults(gomock.Any(), "p1",
			[]attmodels.Dimension{attmodels.DimensionGender, attmodels.DimensionRegion, attmodels.DimensionAgeBucket}).
			Return(&models.PollResults{PollID: "p1", TotalVotes: &total, Options: []models.OptionResult{
				{OptionID: "B", Suppressed: true},
			}}, nil)

		w := get(r, "/polls/p1/results?breakdown=gender,region&breakdown=AGE_BUCKET", false)
		s.Equal(http.StatusOK, w.Code)

		var body map[string]any
		require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &body))
		s.Equal(float64(40), body["total_votes"])
		opt := body["options"].([]any)[0].(map[string]any)
		s.Nil(opt["count"])
		s.NotContains(opt, "percentage")
		s.Equal(true, opt["suppressed"])
	})

	s.Run("no breakdown", func() {
		r, svc := newTestRouter(s.T())
		svc.EXPECT().GetPollResults(gomock.Any(), "p1", gomock.Nil()).
			Return(&models.PollResults{PollID: "p1", Suppressed: true, Options: []models.OptionResult{}}, nil)

		w := get(r, "/polls/p1/results", false)
		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`{"poll_id":"p1","total_votes":null,"suppressed":true,"options":[]}`, w.Body.String())
	})

	s.Run("unknown dimension", func() {
		r, _ := newTestRouter(s.T())
		w := get(r, "/polls/p1/results?breakdown=income", false)
		testutil.AssertStatusAndError(s.T(), w, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("unknown poll", func() {
		r, svc := newTestRouter(s.T())
		svc.EXPECT().GetPollResults(gomock.Any(), "nope", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "poll not found"))
		w := get(r, "/polls/nope/results", false)
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("storage fault hides detail", func() {
		r, svc := newTestRouter(s.T())
		svc.EXPECT().GetPollResults(gomock.Any(), "p1", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeStorage, "failed to read poll results"))
		w := get(r, "/polls/p1/results", false)
		body := testutil.AssertStatusAndError(s.T(), w, http.StatusServiceUnavailable, string(dErrors.CodeStorage))
		s.Empty(body.ErrorDescription)
	})
}

func (s *DisclosureHandlerSuite) TestHandleSecuritySummary() {
	s.Run("requires admin token", func() {
		r, _ := newTestRouter(s.T())
		w := get(r, "/security-events/summary", false)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("filters are parsed", func() {
		r, svc := newTestRouter(s.T())
		since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		svc.EXPECT().GetSecurityEventsSummary(gomock.Any(), models.SecurityFilter{
			Since:    since,
			Severity: "warning",
			Action:   "vote_rejected",
			PollID:   "p1",
		}).Return(&models.SecuritySummary{Suppressed: true, Events: []models.SecurityEventCell{
			{Action: "vote_rejected", Severity: "warning", Suppressed: true},
		}}, nil)

		w := get(r, "/security-events/summary?since=2026-01-01T00:00:00Z&severity=WARNING&action=vote_rejected&poll_id=p1", true)
		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`{"total":null,"suppressed":true,"events":[{"action":"vote_rejected","severity":"warning","count":null,"suppressed":true}]}`, w.Body.String())
	})

	s.Run("bad filters", func() {
		r, _ := newTestRouter(s.T())
		for _, q := range []string{"severity=loud", "since=yesterday", "until=2026-13-01"} {
			w := get(r, "/security-events/summary?"+q, true)
			s.Equal(http.StatusBadRequest, w.Code, q)
		}
	})
}
