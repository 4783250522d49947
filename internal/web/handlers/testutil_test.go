package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-identity/internal/config"
	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/database/mock"
	"github.com/kozaktomas/face-identity/internal/detector"
	"github.com/kozaktomas/face-identity/internal/facematch"
	"github.com/kozaktomas/face-identity/internal/resolver"
)

// testConfig creates a config with the default matching policy
func testConfig() *config.Config {
	t := facematch.DefaultThresholds()
	return &config.Config{
		Matching: config.MatchingConfig{
			MatchThreshold:           t.MatchThreshold,
			MinMargin:                t.MinMargin,
			SingleReferenceThreshold: t.SingleReferenceThreshold,
			SingleReferenceMargin:    t.SingleReferenceMargin,
			DuplicateSimilarity:      t.DuplicateSimilarity,
			TopN:                     t.TopN,
			HNSWMinIdentities:        200,
		},
		Detector: config.DetectorConfig{URL: "http://localhost:8000", MinScore: 0.5},
	}
}

// stubDetector returns one face per image, the embedding taken from the
// first bytes of the upload: "A" for [1,0], "B" for [0,1]
type stubDetector struct{}

func (stubDetector) Detect(_ context.Context, data []byte) (*detector.Detection, error) {
	var emb []float32
	switch string(data) {
	case "A":
		emb = []float32{1, 0}
	case "B":
		emb = []float32{0, 1}
	default:
		return nil, errors.New("failed to decode image")
	}
	return &detector.Detection{
		Width:  100,
		Height: 100,
		Faces: []facematch.DetectedFace{
			{Index: 0, Box: []float64{10, 10, 50, 50}, Embedding: emb, DetScore: 0.9, Accepted: true},
		},
	}, nil
}

type testEnv struct {
	persons *mock.MockPersonWriter
	faces   *mock.MockFaceWriter
	service *resolver.Service
	alice   string
	bob     string
}

// newTestEnv creates a service over mocks with Alice=[1,0] and Bob=[0,1]
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		persons: mock.NewMockPersonWriter(),
		faces:   mock.NewMockFaceWriter(),
	}
	env.alice = env.persons.AddPerson(database.StoredPerson{Owner: "default", Name: "Alice", Bank: mustBank(t, []float32{1, 0})})
	env.bob = env.persons.AddPerson(database.StoredPerson{Owner: "default", Name: "Bob", Bank: mustBank(t, []float32{0, 1})})
	env.service = resolver.NewService(env.persons, env.faces, stubDetector{}, testConfig())
	return env
}

func mustBank(t *testing.T, vectors ...[]float32) facematch.Bank {
	t.Helper()
	bank, err := facematch.NewBank(vectors)
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}
	return bank
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
