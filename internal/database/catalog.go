package database

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"

	"github.com/kozaktomas/face-identity/internal/facematch"
)

// IndexCache keeps one HNSW index per owner and rebuilds it when the
// identity snapshot it was built from changes.
type IndexCache struct {
	minIdentities int
	path          string // optional persistence prefix
	mu            sync.Mutex
	indexes       map[string]*HNSWIndex
}

// NewIndexCache creates a cache. Owners with fewer than minIdentities
// identities are always compared linearly; minIdentities <= 0 disables HNSW.
func NewIndexCache(minIdentities int, path string) *IndexCache {
	return &IndexCache{
		minIdentities: minIdentities,
		path:          path,
		indexes:       make(map[string]*HNSWIndex),
	}
}

// Enabled reports whether an owner with n identities should use the index.
func (c *IndexCache) Enabled(n int) bool {
	return c != nil && c.minIdentities > 0 && n >= c.minIdentities
}

func (c *IndexCache) indexPath(owner string) string {
	if c.path == "" {
		return ""
	}
	return c.path + "." + url.PathEscape(owner)
}

// Get returns an index matching the snapshot, building it when needed.
func (c *IndexCache) Get(owner string, persons []StoredPerson) *HNSWIndex {
	c.mu.Lock()
	defer c.mu.Unlock()

	fp := FingerprintOf(persons)
	if idx, ok := c.indexes[owner]; ok && idx.Fingerprint() == fp {
		return idx
	}

	idx := NewHNSWIndex()
	path := c.indexPath(owner)
	if path != "" {
		loaded, err := idx.Load(path, persons)
		if err != nil {
			log.Printf("Warning: failed to load HNSW index %s: %v", path, err)
		}
		if loaded {
			c.indexes[owner] = idx
			return idx
		}
	}

	idx.Build(persons)
	if path != "" {
		if err := idx.Save(path); err != nil {
			log.Printf("Warning: failed to save HNSW index to disk: %v", err)
		}
	}
	c.indexes[owner] = idx
	return idx
}

// Invalidate drops the cached index of an owner.
func (c *IndexCache) Invalidate(owner string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.indexes, owner)
}

// Catalog is the candidate source for one resolution run of one owner. The
// identity snapshot is read lazily on the first query and reused for the
// rest of the run; a failed read is retried by the next query, so a store
// outage only fails the faces that hit it.
type Catalog struct {
	reader PersonReader
	owner  string
	cache  *IndexCache
	topN   int

	mu       sync.Mutex
	snapshot []facematch.Identity
	index    *HNSWIndex
	loaded   bool
}

// NewCatalog creates a catalog for owner. cache may be nil.
func NewCatalog(reader PersonReader, owner string, cache *IndexCache, topN int) *Catalog {
	return &Catalog{reader: reader, owner: owner, cache: cache, topN: topN}
}

func (c *Catalog) load(ctx context.Context) ([]facematch.Identity, *HNSWIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return c.snapshot, c.index, nil
	}

	persons, err := c.reader.ListPersons(ctx, c.owner)
	if err != nil {
		return nil, nil, fmt.Errorf("list persons: %w", err)
	}

	c.snapshot = Identities(persons)
	if c.cache.Enabled(facematch.CountWithBank(c.snapshot)) {
		c.index = c.cache.Get(c.owner, persons)
	}
	c.loaded = true
	return c.snapshot, c.index, nil
}

// Candidates implements facematch.CandidateSource.
func (c *Catalog) Candidates(ctx context.Context, query []float32) ([]facematch.Identity, error) {
	snapshot, index, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if index == nil {
		return snapshot, nil
	}

	// At least one identity beyond the quick-pick list keeps the
	// second-best score meaningful.
	shortlist, err := index.Shortlist(query, c.topN+1)
	if err != nil {
		return snapshot, nil //nolint:nilerr // fall back to the exact scan
	}
	// A shortlist of one identity would switch the decision to the
	// single-reference regime for an owner that has several.
	if facematch.CountWithBank(shortlist) < 2 {
		return snapshot, nil
	}
	return shortlist, nil
}

// Size returns the number of identities with a bank, loading the snapshot
// if needed.
func (c *Catalog) Size(ctx context.Context) (int, error) {
	snapshot, _, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	return facematch.CountWithBank(snapshot), nil
}
