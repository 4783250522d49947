// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/facematch"
)

// MockPersonWriter is an in-memory database.PersonWriter with the same
// compare-and-swap semantics as the PostgreSQL backend.
type MockPersonWriter struct {
	mu      sync.RWMutex
	persons map[string]*database.StoredPerson

	// SwapConflicts makes the next N SwapBank calls lose the race.
	SwapConflicts int

	// Error injection
	ListError   error
	GetError    error
	FindError   error
	CountError  error
	CreateError error
	SwapError   error
	DeleteError error

	// Call tracking
	ListCalls int
	SwapCalls int
}

// NewMockPersonWriter creates a new mock person writer
func NewMockPersonWriter() *MockPersonWriter {
	return &MockPersonWriter{persons: make(map[string]*database.StoredPerson)}
}

// AddPerson adds a person to the mock store, assigning an ID when empty
func (m *MockPersonWriter) AddPerson(p database.StoredPerson) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.NormalizedName == "" {
		p.NormalizedName = facematch.NormalizePersonName(p.Name)
	}
	if p.Version == 0 {
		p.Version = 1
	}
	p.Bank = p.Bank.Clone()
	m.persons[p.ID] = &p
	return p.ID
}

func clonePerson(p *database.StoredPerson) *database.StoredPerson {
	c := *p
	c.Bank = p.Bank.Clone()
	return &c
}

// ListPersons returns every person of an owner, ordered by name
func (m *MockPersonWriter) ListPersons(_ context.Context, owner string) ([]database.StoredPerson, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()

	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.StoredPerson
	for _, p := range m.persons {
		if p.Owner == owner {
			out = append(out, *clonePerson(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetPerson retrieves a person by ID
func (m *MockPersonWriter) GetPerson(_ context.Context, id string) (*database.StoredPerson, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.persons[id]
	if !ok {
		return nil, nil
	}
	return clonePerson(p), nil
}

// FindPersonByName looks a person up by normalized name
func (m *MockPersonWriter) FindPersonByName(_ context.Context, owner, name string) (*database.StoredPerson, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(owner, facematch.NormalizePersonName(name)), nil
}

func (m *MockPersonWriter) findLocked(owner, normalized string) *database.StoredPerson {
	for _, p := range m.persons {
		if p.Owner == owner && p.NormalizedName == normalized {
			return clonePerson(p)
		}
	}
	return nil
}

// CountPersons returns the number of persons of an owner
func (m *MockPersonWriter) CountPersons(_ context.Context, owner string) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.persons {
		if p.Owner == owner {
			n++
		}
	}
	return n, nil
}

// CreatePerson creates a person with an optional first embedding
func (m *MockPersonWriter) CreatePerson(_ context.Context, owner, name string, initial []float32) (*database.StoredPerson, error) {
	if m.CreateError != nil {
		return nil, m.CreateError
	}

	var bank facematch.Bank
	if len(initial) > 0 {
		if _, err := bank.Append(initial, facematch.DefaultDuplicateSimilarity); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	normalized := facematch.NormalizePersonName(name)
	if m.findLocked(owner, normalized) != nil {
		return nil, fmt.Errorf("%s: %w", name, database.ErrPersonExists)
	}

	now := time.Now()
	p := &database.StoredPerson{
		ID:             uuid.NewString(),
		Owner:          owner,
		Name:           facematch.CleanDisplayName(name),
		NormalizedName: normalized,
		Bank:           bank,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.persons[p.ID] = p
	return clonePerson(p), nil
}

// LoadBank returns the current bank and version of a person
func (m *MockPersonWriter) LoadBank(ctx context.Context, id string) (*database.StoredPerson, error) {
	return m.GetPerson(ctx, id)
}

// SwapBank stores bank only if the version still matches
func (m *MockPersonWriter) SwapBank(_ context.Context, id string, expected int64, bank facematch.Bank) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SwapCalls++

	if m.SwapError != nil {
		return false, m.SwapError
	}
	p, ok := m.persons[id]
	if !ok {
		return false, fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	if m.SwapConflicts > 0 {
		m.SwapConflicts--
		p.Version++
		return false, nil
	}
	if p.Version != expected {
		return false, nil
	}
	p.Bank = bank.Clone()
	p.Version++
	p.UpdatedAt = time.Now()
	return true, nil
}

// AppendToBank folds vector into the person's bank
func (m *MockPersonWriter) AppendToBank(ctx context.Context, id string, vector []float32, dupThreshold float64) (database.AppendResult, error) {
	return database.AppendWithRetry(ctx, m, id, vector, dupThreshold)
}

// DeletePerson removes a person
func (m *MockPersonWriter) DeletePerson(_ context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.persons[id]; !ok {
		return fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	delete(m.persons, id)
	return nil
}

// MockFaceWriter is an in-memory database.FaceWriter
type MockFaceWriter struct {
	mu     sync.RWMutex
	faces  map[int64]*database.StoredFace
	nextID int64

	// Error injection
	GetError    error
	ListError   error
	CountError  error
	SaveError   error
	AssignError error

	// Call tracking
	SaveCalls   int
	AssignCalls int
}

// NewMockFaceWriter creates a new mock face writer
func NewMockFaceWriter() *MockFaceWriter {
	return &MockFaceWriter{faces: make(map[int64]*database.StoredFace)}
}

// AddFace adds a face to the mock store and returns its ID
func (m *MockFaceWriter) AddFace(f database.StoredFace) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	f.ID = m.nextID
	m.faces[f.ID] = &f
	return f.ID
}

// GetFace retrieves a face by ID
func (m *MockFaceWriter) GetFace(_ context.Context, id int64) (*database.StoredFace, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.faces[id]
	if !ok {
		return nil, nil
	}
	c := *f
	return &c, nil
}

// ListFacesByImage returns the faces of one image ordered by face index
func (m *MockFaceWriter) ListFacesByImage(_ context.Context, owner, imageRef string) ([]database.StoredFace, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.StoredFace
	for _, f := range m.faces {
		if f.Owner == owner && f.ImageRef == imageRef {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FaceIndex < out[j].FaceIndex })
	return out, nil
}

// CountFaces returns the total number of faces
func (m *MockFaceWriter) CountFaces(_ context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.faces), nil
}

// SaveFaces replaces the unconfirmed faces of an image, keeping confirmed ones
func (m *MockFaceWriter) SaveFaces(_ context.Context, owner, imageRef string, faces []database.StoredFace) ([]database.StoredFace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++

	if m.SaveError != nil {
		return nil, m.SaveError
	}
	confirmed := make(map[int]*database.StoredFace)
	for id, f := range m.faces {
		if f.Owner != owner || f.ImageRef != imageRef {
			continue
		}
		if f.Confirmed {
			confirmed[f.FaceIndex] = f
			continue
		}
		delete(m.faces, id)
	}

	saved := make([]database.StoredFace, len(faces))
	for i := range faces {
		if existing, ok := confirmed[faces[i].FaceIndex]; ok {
			saved[i] = *existing
			continue
		}
		m.nextID++
		f := faces[i]
		f.ID = m.nextID
		f.Owner = owner
		f.ImageRef = imageRef
		f.CreatedAt = time.Now()
		m.faces[f.ID] = &f
		saved[i] = f
	}
	return saved, nil
}

// AssignFace writes the identity link of a face
func (m *MockFaceWriter) AssignFace(_ context.Context, id int64, a database.FaceAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AssignCalls++

	if m.AssignError != nil {
		return m.AssignError
	}
	f, ok := m.faces[id]
	if !ok {
		return fmt.Errorf("face %d: %w", id, database.ErrNotFound)
	}
	f.PersonID = a.PersonID
	f.Status = a.Status
	f.Similarity = a.Similarity
	f.Confirmed = a.Confirmed
	return nil
}

// MockHealth implements database.HealthChecker
type MockHealth struct {
	PingError error
}

// Ping returns the injected error
func (m *MockHealth) Ping(_ context.Context) error {
	return m.PingError
}
