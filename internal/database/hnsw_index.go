package database

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-identity/internal/constants"
	"github.com/kozaktomas/face-identity/internal/facematch"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	NodeCount   int         `json:"node_count"`
	BuildTime   time.Time   `json:"build_time"`
	Version     int         `json:"version"` // For future compatibility
}

const hnswMetadataVersion = 1

// Fingerprint identifies an identity snapshot. Any bank write bumps a
// person version, so a changed sum means the index is stale.
type Fingerprint struct {
	Identities int   `json:"identities"`
	VersionSum int64 `json:"version_sum"`
}

// FingerprintOf computes the fingerprint of a person snapshot.
func FingerprintOf(persons []StoredPerson) Fingerprint {
	fp := Fingerprint{Identities: len(persons)}
	for i := range persons {
		fp.VersionSum += persons[i].Version
	}
	return fp
}

// HNSWIndex is an approximate nearest neighbor graph over every bank vector
// and centroid of a set of identities. Each graph node maps back to the
// identity it belongs to.
type HNSWIndex struct {
	graph      *hnsw.Graph[int64]
	nodeToID   map[int64]string              // graph node -> identity ID
	identities map[string]facematch.Identity // identity ID -> identity
	fp         Fingerprint
	dim        int
	mu         sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		nodeToID:   make(map[int64]string),
		identities: make(map[string]facematch.Identity),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors)
	g.EfSearch = constants.HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build indexes persons. Persons with an empty bank are skipped.
func (h *HNSWIndex) Build(persons []StoredPerson) {
	g := newGraph()
	nodeToID := make(map[int64]string)
	identities := make(map[string]facematch.Identity, len(persons))

	var key int64
	dim := 0
	for i := range persons {
		p := &persons[i]
		if p.Bank.IsEmpty() {
			continue
		}
		// the graph holds a single dimension
		if dim == 0 {
			dim = p.Bank.Dim()
		} else if p.Bank.Dim() != dim {
			continue
		}
		identities[p.ID] = p.Identity()
		for _, v := range p.Bank.Vectors {
			g.Add(hnsw.MakeNode(key, v))
			nodeToID[key] = p.ID
			key++
		}
		if len(p.Bank.Centroid) > 0 {
			g.Add(hnsw.MakeNode(key, p.Bank.Centroid))
			nodeToID[key] = p.ID
			key++
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = g
	h.nodeToID = nodeToID
	h.identities = identities
	h.fp = FingerprintOf(persons)
	h.dim = dim
}

// Fingerprint returns the fingerprint of the indexed snapshot.
func (h *HNSWIndex) Fingerprint() Fingerprint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fp
}

// Count returns the number of indexed identities.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.identities)
}

// NodeCount returns the number of vectors in the graph.
func (h *HNSWIndex) NodeCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodeToID)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil || len(h.nodeToID) == 0
}

// Shortlist returns the identities owning the nearest graph nodes to query.
// The neighbor count grows until at least minIdentities distinct identities
// are found or the whole graph has been searched, so a shortlist never
// shrinks a multi-identity comparison into a single-identity one.
func (h *HNSWIndex) Shortlist(query []float32, minIdentities int) ([]facematch.Identity, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}
	if len(query) != h.dim {
		return nil, fmt.Errorf("%w: query %d, index %d", facematch.ErrDimensionMismatch, len(query), h.dim)
	}

	nodes := len(h.nodeToID)
	minIdentities = min(minIdentities, len(h.identities))
	k := min(constants.HNSWShortlistSize, nodes)

	for {
		seen := make(map[string]struct{})
		var out []facematch.Identity
		for _, n := range h.graph.Search(query, k) {
			id, ok := h.nodeToID[n.Key]
			if !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, h.identities[id])
		}

		if len(out) >= minIdentities || k >= nodes || k >= constants.HNSWMaxShortlistSize {
			return out, nil
		}
		k = min(k*2, nodes)
	}
}

// Save persists the graph, the node mapping and metadata next to path.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || len(h.nodeToID) == 0 {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".nodes")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing HNSW index file: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h.nodeToID); err != nil {
		return fmt.Errorf("failed to encode node mapping: %w", err)
	}
	if err := os.WriteFile(path+".nodes", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write node mapping: %w", err)
	}

	metadata := HNSWIndexMetadata{
		Fingerprint: h.fp,
		NodeCount:   len(h.nodeToID),
		BuildTime:   time.Now(),
		Version:     hnswMetadataVersion,
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load restores a saved index if it was built from the same snapshot as
// persons. It returns false when the saved index is missing or stale.
func (h *HNSWIndex) Load(path string, persons []StoredPerson) (bool, error) {
	metadata, err := LoadHNSWMetadata(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if metadata.Version != hnswMetadataVersion || metadata.Fingerprint != FingerprintOf(persons) {
		return false, nil
	}

	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return false, fmt.Errorf("failed to open HNSW index: %w", err)
	}
	defer f.Close()

	g := newGraph()
	if err := g.Import(f); err != nil {
		return false, fmt.Errorf("failed to import HNSW graph: %w", err)
	}

	data, err := os.ReadFile(path + ".nodes") //nolint:gosec // path is from trusted config
	if err != nil {
		return false, fmt.Errorf("failed to read node mapping: %w", err)
	}
	var nodeToID map[int64]string
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&nodeToID); err != nil {
		return false, fmt.Errorf("failed to decode node mapping: %w", err)
	}

	byID := make(map[string]*StoredPerson, len(persons))
	for i := range persons {
		byID[persons[i].ID] = &persons[i]
	}
	identities := make(map[string]facematch.Identity)
	dim := 0
	for _, id := range nodeToID {
		p, ok := byID[id]
		if !ok || p.Bank.IsEmpty() {
			return false, nil
		}
		identities[id] = p.Identity()
		dim = p.Bank.Dim()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = g
	h.nodeToID = nodeToID
	h.identities = identities
	h.fp = metadata.Fingerprint
	h.dim = dim
	return true, nil
}
