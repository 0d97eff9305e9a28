package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/BTreeMap/CampusCare/internal/support"
	"github.com/BTreeMap/CampusCare/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *testutil.Env) {
	t.Helper()
	env := testutil.NewTestService(t)
	return NewServer(env.Service), env
}

func do(t *testing.T, s *Server, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, testutil.CreateHTTPRequest(t, method, url, body))
	return rr
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	rr := do(t, s, http.MethodPost, "/sessions", CreateSessionRequest{UserID: "student-1"})
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create session")
	resp := testutil.AssertJSONResponse(t, rr, models.APIStatusOK)
	var sess models.Session
	testutil.DecodeResult(t, resp, &sess)
	if sess.ID == "" {
		t.Fatal("expected session id")
	}
	return sess.ID
}

func TestHealthAndInstruments(t *testing.T) {
	s, _ := newTestServer(t)

	rr := do(t, s, http.MethodGet, "/health", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	testutil.AssertJSONResponse(t, rr, models.APIStatusOK)

	rr = do(t, s, http.MethodGet, "/instruments", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list instruments")
	var list InstrumentList
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, models.APIStatusOK), &list)
	if len(list.Instruments) != 2 || list.Instruments[0].ID != "phq9" {
		t.Errorf("unexpected instruments: %+v", list.Instruments)
	}

	rr = do(t, s, http.MethodGet, "/instruments/gad7", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get instrument")

	rr = do(t, s, http.MethodGet, "/instruments/bdi", nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown instrument")
	testutil.AssertJSONResponse(t, rr, models.APIStatusError)
}

func TestScreeningFlow(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)

	rr := do(t, s, http.MethodPost, "/sessions/"+id+"/screenings", ScreeningRequest{
		InstrumentID: "phq9",
		Responses:    testutil.Responses(9, 10),
	})
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "submit screening")
	var out support.ScreeningOutcome
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, models.APIStatusOK), &out)
	if out.Result.Band.Label != "Moderate Depression" {
		t.Errorf("expected Moderate Depression, got %s", out.Result.Band.Label)
	}
	if out.SafetyNotice == nil {
		t.Error("expected safety notice at threshold")
	}
	if out.Decision.RiskLevel != models.RiskEscalated {
		t.Errorf("expected ESCALATED, got %s", out.Decision.RiskLevel)
	}

	rr = do(t, s, http.MethodGet, "/sessions/"+id+"/summary", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "summary")
	var summary SummaryResponse
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, models.APIStatusOK), &summary)
	want := "PHQ-9: Moderate Depression (10/27). Most recent result: Moderate Depression."
	if summary.ContextSummary != want {
		t.Errorf("expected summary %q, got %q", want, summary.ContextSummary)
	}
}

func TestScreeningValidation(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)

	partial := testutil.Responses(9, 4)
	delete(partial, 0)
	tests := []struct {
		name string
		url  string
		body interface{}
		want int
	}{
		{"incomplete", "/sessions/" + id + "/screenings", ScreeningRequest{InstrumentID: "phq9", Responses: partial}, http.StatusBadRequest},
		{"out of scale", "/sessions/" + id + "/screenings", ScreeningRequest{InstrumentID: "gad7", Responses: models.ResponseSet{0: 4, 1: 0, 2: 0, 3: 0, 4: 0, 5: 0, 6: 0}}, http.StatusBadRequest},
		{"missing instrument", "/sessions/" + id + "/screenings", ScreeningRequest{Responses: testutil.Responses(9, 0)}, http.StatusBadRequest},
		{"unknown instrument", "/sessions/" + id + "/screenings", ScreeningRequest{InstrumentID: "bdi", Responses: testutil.Responses(9, 0)}, http.StatusNotFound},
		{"unknown session", "/sessions/nope/screenings", ScreeningRequest{InstrumentID: "phq9", Responses: testutil.Responses(9, 0)}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s, http.MethodPost, tt.url, tt.body)
			testutil.AssertHTTPStatus(t, tt.want, rr.Code, tt.name)
			testutil.AssertJSONResponse(t, rr, models.APIStatusError)
		})
	}
}

func TestMessageFlowAndShare(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)

	rr := do(t, s, http.MethodPost, "/sessions/"+id+"/share", nil)
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "share before escalation")

	rr = do(t, s, http.MethodPost, "/sessions/"+id+"/messages", MessageRequest{Text: "I keep having a panic attack", Language: "en"})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "submit message")
	var out support.MessageOutcome
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, models.APIStatusOK), &out)
	if out.Priority != models.PriorityHigh || len(out.EmergencyResources) != 3 {
		t.Errorf("expected high priority with resources, got %s and %d", out.Priority, len(out.EmergencyResources))
	}

	rr = do(t, s, http.MethodPost, "/sessions/"+id+"/share", nil)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "share after escalation")
	var share models.CounsellorShare
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, models.APIStatusOK), &share)
	if !share.RequiresIntervention || len(share.Transcript) != 2 {
		t.Errorf("unexpected share: %+v", share)
	}

	rr = do(t, s, http.MethodGet, "/sessions/"+id+"/shares", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list shares")

	rr = do(t, s, http.MethodGet, "/sessions/"+id, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get session")
	var view support.SessionView
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, models.APIStatusOK), &view)
	if view.Decision.RiskLevel != models.RiskEscalated || len(view.Session.Turns) != 2 {
		t.Errorf("unexpected session view: %+v", view.Decision)
	}
}

func TestMessageDegraded(t *testing.T) {
	s, env := newTestServer(t)
	env.Generator.Err = errors.New("quota exceeded")
	id := createSession(t, s)

	rr := do(t, s, http.MethodPost, "/sessions/"+id+"/messages", MessageRequest{Text: "hello"})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "degraded message")
	var out support.MessageOutcome
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, models.APIStatusDegraded), &out)
	if out.Priority != models.PriorityMedium {
		t.Errorf("expected medium priority on fallback, got %s", out.Priority)
	}
	if out.ClassifiedPriority != models.PriorityLow || out.Decision.RiskLevel != models.RiskNormal {
		t.Errorf("expected classified low with NORMAL decision, got %s and %s", out.ClassifiedPriority, out.Decision.RiskLevel)
	}
	if out.Response != env.Registry.Lexicon().FallbackResponse() {
		t.Errorf("expected fallback response, got %q", out.Response)
	}
}

func TestScreeningStoredLaterWhenStoreFails(t *testing.T) {
	s, env := newTestServer(t)
	id := createSession(t, s)
	env.Faults.FailWrites(1)

	rr := do(t, s, http.MethodPost, "/sessions/"+id+"/screenings", ScreeningRequest{
		InstrumentID: "phq9",
		Responses:    testutil.Responses(9, 27),
	})
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "screening with store down")
	var out support.ScreeningOutcome
	testutil.DecodeResult(t, testutil.AssertJSONResponse(t, rr, models.APIStatusDegraded), &out)
	if !out.PersistencePending {
		t.Error("expected persistence_pending")
	}
	if out.SafetyNotice == nil || len(out.Decision.EmergencyResources) == 0 {
		t.Errorf("expected safety notice and emergency resources, got %+v", out)
	}
	if out.Decision.RiskLevel != models.RiskEscalated {
		t.Errorf("expected ESCALATED, got %s", out.Decision.RiskLevel)
	}

	if n := env.Service.FlushPending(context.Background()); n != 0 {
		t.Fatalf("expected queue drained, %d left", n)
	}
	stored, err := env.Store.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(stored.Results) != 1 {
		t.Errorf("expected result written on retry, got %d", len(stored.Results))
	}
}

func TestMessageValidation(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)

	rr := do(t, s, http.MethodPost, "/sessions/"+id+"/messages", MessageRequest{Text: ""})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "empty text")

	rr = do(t, s, http.MethodPost, "/sessions/"+id+"/messages", MessageRequest{Text: "   "})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "blank text")

	rr = do(t, s, http.MethodPost, "/sessions/"+id+"/messages", MessageRequest{Text: "hi", Language: "fr"})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "unsupported language")
	resp := testutil.AssertJSONResponse(t, rr, models.APIStatusError)
	if !strings.Contains(resp.Message, "language") {
		t.Errorf("expected error to name the language field, got %q", resp.Message)
	}

	rr = do(t, s, http.MethodPost, "/sessions", map[string]string{"user": "x"})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "unknown field")
}

func TestMethodNotAllowedAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	rr := do(t, s, http.MethodDelete, "/sessions", nil)
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "delete sessions")

	rr = do(t, s, http.MethodGet, "/metrics", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "metrics")
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("expected default Go collector metrics")
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&models.IncompleteResponseError{InstrumentID: "phq9", Missing: []int{1}}, http.StatusBadRequest},
		{&models.InvalidResponseValueError{Index: 0, Value: 7}, http.StatusBadRequest},
		{models.ErrEmptyMessage, http.StatusBadRequest},
		{fmt.Errorf("%w: x", models.ErrSessionNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: x", models.ErrUnknownInstrument), http.StatusNotFound},
		{fmt.Errorf("%w: NORMAL", models.ErrShareNotPermitted), http.StatusConflict},
		{&models.ExternalServiceError{Service: "store", Op: "CreateSession", Err: errors.New("disk full")}, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestNewServerAddr(t *testing.T) {
	env := testutil.NewTestService(t)
	if got := NewServer(env.Service).Addr(); got != DefaultAddr {
		t.Errorf("expected default addr, got %s", got)
	}
	if got := NewServer(env.Service, WithAddr("127.0.0.1:9999")).Addr(); got != "127.0.0.1:9999" {
		t.Errorf("expected configured addr, got %s", got)
	}
}
