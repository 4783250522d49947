package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-identity/internal/resolver"
)

// PersonsHandler handles identity administration endpoints
type PersonsHandler struct {
	service *resolver.Service
}

// NewPersonsHandler creates a new persons handler
func NewPersonsHandler(svc *resolver.Service) *PersonsHandler {
	return &PersonsHandler{service: svc}
}

// CreatePersonRequest is the body of POST /persons
type CreatePersonRequest struct {
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Embedding []float32 `json:"embedding"`
}

// List returns the identities of an owner
func (h *PersonsHandler) List(w http.ResponseWriter, r *http.Request) {
	persons, err := h.service.ListPersons(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		respondServiceError(w, err, "list persons")
		return
	}
	if persons == nil {
		persons = []resolver.PersonSummary{}
	}
	respondJSON(w, http.StatusOK, persons)
}

// Create creates an identity
func (h *PersonsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	person, err := h.service.CreatePerson(r.Context(), req.Owner, req.Name, req.Embedding)
	if err != nil {
		respondServiceError(w, err, "create person")
		return
	}
	respondJSON(w, http.StatusCreated, person)
}

// Delete removes an identity
func (h *PersonsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeletePerson(r.Context(), id); err != nil {
		respondServiceError(w, err, "delete person")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
