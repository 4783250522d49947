package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/facematch"
	"github.com/kozaktomas/face-identity/internal/resolver"
)

func TestRespondJSON(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusCreated, map[string]any{"message": "hello", "count": 42})

	assertStatusCode(t, recorder, http.StatusCreated)
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}
	var result map[string]any
	parseJSONResponse(t, recorder, &result)
	if result["message"] != "hello" || result["count"] != float64(42) {
		t.Errorf("unexpected body %v", result)
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusOK, nil)

	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondError(recorder, http.StatusBadRequest, "something went wrong")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "something went wrong")
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", fmt.Errorf("face 3: %w", database.ErrNotFound), http.StatusNotFound},
		{"person exists", fmt.Errorf("create person: %w", database.ErrPersonExists), http.StatusConflict},
		{"version conflict", database.ErrVersionConflict, http.StatusConflict},
		{"dimension mismatch", fmt.Errorf("update bank: %w", facematch.ErrDimensionMismatch), http.StatusBadRequest},
		{"invalid embedding", facematch.ErrInvalidEmbedding, http.StatusBadRequest},
		{"missing identity", resolver.ErrMissingIdentity, http.StatusBadRequest},
		{"invalid name", resolver.ErrInvalidName, http.StatusBadRequest},
		{"no detector", resolver.ErrDetectorUnavailable, http.StatusServiceUnavailable},
		{"no face storage", resolver.ErrFacesUnavailable, http.StatusServiceUnavailable},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondServiceError(recorder, tc.err, "do things")
			assertStatusCode(t, recorder, tc.expected)
		})
	}
}

func TestRespondServiceError_HidesInternalDetails(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondServiceError(recorder, errors.New("pq: password authentication failed"), "list persons")

	assertJSONError(t, recorder, "failed to list persons")
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain", "plain"},
		{"line1\nline2", "line1line2"},
		{"a\r\nb", "ab"},
		{"", ""},
	}

	for _, tc := range tests {
		if got := sanitizeForLog(tc.input); got != tc.expected {
			t.Errorf("sanitizeForLog(%q) = %q; want %q", tc.input, got, tc.expected)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	recorder := httptest.NewRecorder()

	HealthCheck(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", result["status"])
	}
	if result["database"] != "not configured" {
		t.Errorf("expected database 'not configured', got '%s'", result["database"])
	}
}
