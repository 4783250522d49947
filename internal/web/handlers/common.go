package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/facematch"
	"github.com/kozaktomas/face-identity/internal/resolver"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps resolver and store errors to HTTP statuses.
// Unexpected errors are logged and reported without details.
func respondServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrPersonExists),
		errors.Is(err, database.ErrVersionConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, facematch.ErrDimensionMismatch),
		errors.Is(err, facematch.ErrInvalidEmbedding),
		errors.Is(err, resolver.ErrMissingIdentity),
		errors.Is(err, resolver.ErrInvalidName):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, resolver.ErrDetectorUnavailable),
		errors.Is(err, resolver.ErrFacesUnavailable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("Error: failed to %s: %v", action, err)
		respondError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"
	if database.IsInitialized() {
		dbStatus = "ok"
		if err := database.Ping(r.Context()); err != nil {
			log.Printf("Warning: database ping failed: %v", err)
			status = "degraded"
			dbStatus = "unreachable"
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"database": dbStatus,
	})
}
