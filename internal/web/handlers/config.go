package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-identity/internal/config"
	"github.com/kozaktomas/face-identity/internal/database"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Matching         MatchingInfo `json:"matching"`
	DetectorURL      string       `json:"detector_url"`
	DetectorMinScore float64      `json:"detector_min_score"`
	DatabaseReady    bool         `json:"database_ready"`
}

// MatchingInfo is the active decision policy
type MatchingInfo struct {
	MatchThreshold           float64 `json:"match_threshold"`
	MinMargin                float64 `json:"min_margin"`
	SingleReferenceThreshold float64 `json:"single_reference_threshold"`
	SingleReferenceMargin    float64 `json:"single_reference_margin"`
	DuplicateSimilarity      float64 `json:"duplicate_similarity"`
	TopN                     int     `json:"top_n"`
	HNSWMinIdentities        int     `json:"hnsw_min_identities"`
}

// Get returns the active configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	m := h.config.Matching
	respondJSON(w, http.StatusOK, ConfigResponse{
		Matching: MatchingInfo{
			MatchThreshold:           m.MatchThreshold,
			MinMargin:                m.MinMargin,
			SingleReferenceThreshold: m.SingleReferenceThreshold,
			SingleReferenceMargin:    m.SingleReferenceMargin,
			DuplicateSimilarity:      m.DuplicateSimilarity,
			TopN:                     m.TopN,
			HNSWMinIdentities:        m.HNSWMinIdentities,
		},
		DetectorURL:      h.config.Detector.URL,
		DetectorMinScore: h.config.Detector.MinScore,
		DatabaseReady:    database.IsInitialized(),
	})
}
