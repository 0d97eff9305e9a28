// Package testutil provides common test utilities and helpers for CampusCare tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/BTreeMap/CampusCare/internal/genai"
	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/BTreeMap/CampusCare/internal/registry"
	"github.com/BTreeMap/CampusCare/internal/store"
	"github.com/BTreeMap/CampusCare/internal/support"
)

// TB is the subset of testing.TB used by the helpers.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Env bundles a support service with its in-memory dependencies.
type Env struct {
	Service   *support.Service
	Store     *store.InMemoryStore
	Faults    *FaultyStore
	Generator *genai.MockGenerator
	Registry  *registry.Registry
}

// FaultyStore wraps a Store and fails the next session appends on request.
type FaultyStore struct {
	store.Store

	mu       sync.Mutex
	failures int
}

// FailWrites makes the next n result or turn appends return an error.
func (f *FaultyStore) FailWrites(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

func (f *FaultyStore) fault() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures == 0 {
		return nil
	}
	f.failures--
	return errors.New("store unavailable")
}

func (f *FaultyStore) AppendScreeningResult(r models.ScreeningResult) error {
	if err := f.fault(); err != nil {
		return err
	}
	return f.Store.AppendScreeningResult(r)
}

func (f *FaultyStore) AppendChatTurn(t models.ChatTurn) error {
	if err := f.fault(); err != nil {
		return err
	}
	return f.Store.AppendChatTurn(t)
}

// NewTestService creates a support service backed by the embedded
// configuration, an in-memory store and the mock generator.
func NewTestService(t TB, opts ...support.Option) *Env {
	t.Helper()
	reg, err := registry.Load("")
	if err != nil {
		t.Fatalf("failed to load default registry: %v", err)
	}
	st := store.NewInMemoryStore()
	faults := &FaultyStore{Store: st}
	gen := genai.NewMockGenerator()
	return &Env{
		Service:   support.NewService(faults, reg, gen, opts...),
		Store:     st,
		Faults:    faults,
		Generator: gen,
		Registry:  reg,
	}
}

// Responses returns a response set for n questions whose values sum to total,
// filling from the first question.
func Responses(n, total int) models.ResponseSet {
	rs := make(models.ResponseSet, n)
	for i := 0; i < n; i++ {
		v := total
		if v > models.MaxResponseValue {
			v = models.MaxResponseValue
		}
		if v < models.MinResponseValue {
			v = models.MinResponseValue
		}
		rs[i] = v
		total -= v
	}
	return rs
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if response.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s' (message: %s)", expectedStatus, response.Status, response.Message)
	}
	return response
}

// DecodeResult re-decodes the Result field of an APIResponse into target.
func DecodeResult(t TB, resp models.APIResponse, target interface{}) {
	t.Helper()
	MustUnmarshalJSON(t, MustMarshalJSON(t, resp.Result), target)
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
