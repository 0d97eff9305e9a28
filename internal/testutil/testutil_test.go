package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/CampusCare/internal/models"
)

// mockTestingT records failures instead of failing the enclosing test.
type mockTestingT struct {
	failed bool
}

func (m *mockTestingT) Helper() {}

func (m *mockTestingT) Errorf(format string, args ...interface{}) {
	m.failed = true
}

func (m *mockTestingT) Fatalf(format string, args ...interface{}) {
	m.failed = true
}

func TestNewTestService(t *testing.T) {
	env := NewTestService(t)
	if env.Service == nil || env.Store == nil || env.Generator == nil || env.Registry == nil {
		t.Fatal("NewTestService returned incomplete env")
	}
	sess, err := env.Service.CreateSession(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := env.Store.GetSession(sess.ID); err != nil {
		t.Errorf("session not persisted: %v", err)
	}
}

func TestFaultyStoreFailsRequestedWrites(t *testing.T) {
	env := NewTestService(t)
	sess, err := env.Service.CreateSession(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	turn := models.ChatTurn{ID: "t1", SessionID: sess.ID, Role: models.RoleUser, Content: "hi"}

	env.Faults.FailWrites(1)
	if err := env.Faults.AppendChatTurn(turn); err == nil {
		t.Fatal("expected first write to fail")
	}
	if err := env.Faults.AppendChatTurn(turn); err != nil {
		t.Fatalf("expected second write to pass: %v", err)
	}
	stored, err := env.Store.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(stored.Turns) != 1 {
		t.Errorf("expected 1 stored turn, got %d", len(stored.Turns))
	}
}

func TestResponses(t *testing.T) {
	tests := []struct {
		n, total int
		want     models.ResponseSet
	}{
		{3, 0, models.ResponseSet{0: 0, 1: 0, 2: 0}},
		{3, 4, models.ResponseSet{0: 3, 1: 1, 2: 0}},
		{3, 9, models.ResponseSet{0: 3, 1: 3, 2: 3}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d", tt.n, tt.total), func(t *testing.T) {
			got := Responses(tt.n, tt.total)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d answers, got %d", len(tt.want), len(got))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("question %d: expected %d, got %d", k, v, got[k])
				}
			}
		})
	}
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{name: "matching status codes", expected: 200, actual: 200},
		{name: "different status codes", expected: 200, actual: 404, shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")
			if tt.shouldFail != mockT.failed {
				t.Errorf("expected failed=%v, got %v", tt.shouldFail, mockT.failed)
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Body.Write(MustMarshalJSON(t, models.Success(map[string]int{"n": 1})))
	resp := AssertJSONResponse(t, rr, models.APIStatusOK)

	var out map[string]int
	DecodeResult(t, resp, &out)
	if out["n"] != 1 {
		t.Errorf("expected decoded result n=1, got %v", out)
	}

	mockT := &mockTestingT{}
	rr = httptest.NewRecorder()
	rr.Body.Write(MustMarshalJSON(t, models.Error("boom")))
	AssertJSONResponse(mockT, rr, models.APIStatusOK)
	if !mockT.failed {
		t.Error("expected status mismatch to fail")
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodPost, "/sessions", map[string]string{"user_id": "u"})
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON content type")
	}
	req = CreateHTTPRequest(t, http.MethodGet, "/health", nil)
	if req.ContentLength != 0 {
		t.Errorf("expected empty body, got %d bytes", req.ContentLength)
	}
}
