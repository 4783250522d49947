package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kozaktomas/face-identity/internal/constants"
	"github.com/kozaktomas/face-identity/internal/facematch"
	"github.com/kozaktomas/face-identity/internal/resolver"
)

// ResolveHandler handles identity resolution endpoints
type ResolveHandler struct {
	service *resolver.Service
}

// NewResolveHandler creates a new resolve handler
func NewResolveHandler(svc *resolver.Service) *ResolveHandler {
	return &ResolveHandler{service: svc}
}

// resolveFaceRequest is one detected face with a precomputed embedding.
type resolveFaceRequest struct {
	FaceIndex *int      `json:"face_index"`
	BBox      []float64 `json:"bbox"`
	Embedding []float32 `json:"embedding"`
	DetScore  *float64  `json:"det_score"`
	Accepted  *bool     `json:"accepted"`
}

type resolveImageRequest struct {
	Ref    string               `json:"ref"`
	Width  int                  `json:"width"`
	Height int                  `json:"height"`
	Faces  []resolveFaceRequest `json:"faces"`
}

// ResolveRequest is the body of POST /resolve
type ResolveRequest struct {
	Owner   string                `json:"owner"`
	Order   string                `json:"order"`
	Persist bool                  `json:"persist"`
	Images  []resolveImageRequest `json:"images"`
}

// ResolveResponse is returned by both resolve endpoints
type ResolveResponse struct {
	Results []resolver.ImageReport `json:"results"`
	Summary resolver.Summary       `json:"summary"`
}

// input converts the request image, defaulting missing fields: the face
// index to the position, the detector score to 1 and accepted to true.
func (img *resolveImageRequest) input() facematch.ImageInput {
	in := facematch.ImageInput{
		Ref:    img.Ref,
		Width:  img.Width,
		Height: img.Height,
		Faces:  make([]facematch.DetectedFace, len(img.Faces)),
	}
	for i, f := range img.Faces {
		face := facematch.DetectedFace{
			Index:     i,
			Box:       f.BBox,
			Embedding: f.Embedding,
			DetScore:  1,
			Accepted:  true,
		}
		if f.FaceIndex != nil {
			face.Index = *f.FaceIndex
		}
		if f.DetScore != nil {
			face.DetScore = *f.DetScore
		}
		if f.Accepted != nil {
			face.Accepted = *f.Accepted
		}
		in.Faces[i] = face
	}
	return in
}

// Resolve decides the identities of precomputed face embeddings
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if len(req.Images) == 0 {
		respondError(w, http.StatusBadRequest, "images are required")
		return
	}
	if len(req.Images) > constants.MaxImagesPerRequest {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("too many images: %d (max %d)", len(req.Images), constants.MaxImagesPerRequest))
		return
	}

	images := make([]facematch.ImageInput, len(req.Images))
	for i := range req.Images {
		images[i] = req.Images[i].input()
	}

	reports := h.service.ResolveImages(r.Context(), req.Owner, images, resolver.ResolveOptions{
		Order:   facematch.ParseOrder(req.Order),
		Persist: req.Persist,
	})

	respondJSON(w, http.StatusOK, ResolveResponse{
		Results: reports,
		Summary: resolver.Summarize(reports),
	})
}
