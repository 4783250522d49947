package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/facematch"
	"github.com/kozaktomas/face-identity/internal/resolver"
)

// FacesHandler handles the human feedback endpoints
type FacesHandler struct {
	service *resolver.Service
}

// NewFacesHandler creates a new faces handler
func NewFacesHandler(svc *resolver.Service) *FacesHandler {
	return &FacesHandler{service: svc}
}

// FaceResponse is a stored face without its embedding
type FaceResponse struct {
	ID         int64            `json:"id"`
	ImageRef   string           `json:"image_ref"`
	FaceIndex  int              `json:"face_index"`
	BBox       []float64        `json:"bbox"`
	DetScore   float64          `json:"det_score"`
	PersonID   string           `json:"person_id,omitempty"`
	Status     facematch.Status `json:"status"`
	Similarity float64          `json:"similarity"`
	Confirmed  bool             `json:"confirmed"`
}

func faceID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// List returns the stored faces of one image
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	imageRef := r.URL.Query().Get("image_ref")
	if imageRef == "" {
		respondError(w, http.StatusBadRequest, "image_ref is required")
		return
	}

	faces, err := h.service.ListImageFaces(r.Context(), r.URL.Query().Get("owner"), imageRef)
	if err != nil {
		respondServiceError(w, err, "list faces")
		return
	}

	out := make([]FaceResponse, len(faces))
	for i, f := range faces {
		out[i] = FaceResponse{
			ID:         f.ID,
			ImageRef:   f.ImageRef,
			FaceIndex:  f.FaceIndex,
			BBox:       f.BBox,
			DetScore:   f.DetScore,
			PersonID:   f.PersonID,
			Status:     f.Status,
			Similarity: f.Similarity,
			Confirmed:  f.Confirmed,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// Confirm links a face to an identity and teaches that identity's bank
func (h *FacesHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := faceID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid face id")
		return
	}

	var req resolver.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	result, err := h.service.ConfirmFace(r.Context(), id, req)
	if err != nil {
		respondServiceError(w, err, "confirm face")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Reject clears the identity link of a face without learning
func (h *FacesHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := faceID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid face id")
		return
	}

	if err := h.service.RejectFace(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "face not found")
			return
		}
		respondServiceError(w, err, "reject face")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"face_id": id, "status": facematch.StatusUnknown})
}
