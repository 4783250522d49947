package database

import (
	"errors"
	"time"

	"github.com/kozaktomas/face-identity/internal/facematch"
)

var (
	// ErrNotFound is returned when a person or face does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPersonExists is returned when the normalized name is taken within an owner.
	ErrPersonExists = errors.New("person already exists")
	// ErrVersionConflict is returned when a bank update lost every compare-and-swap attempt.
	ErrVersionConflict = errors.New("bank version conflict")
)

// StoredPerson is a named identity with its embedding bank.
type StoredPerson struct {
	ID             string
	Owner          string
	Name           string
	NormalizedName string
	Bank           facematch.Bank
	Version        int64 // bumped on every bank write, used for compare-and-swap
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Identity returns the matcher view of the person.
func (p *StoredPerson) Identity() facematch.Identity {
	return facematch.Identity{ID: p.ID, Name: p.Name, Bank: p.Bank}
}

// Identities converts stored persons for the matcher.
func Identities(persons []StoredPerson) []facematch.Identity {
	out := make([]facematch.Identity, len(persons))
	for i := range persons {
		out[i] = persons[i].Identity()
	}
	return out
}

// StoredFace is one detected face of an image together with the engine's
// guess and, once a human acted on it, the confirmed link.
type StoredFace struct {
	ID         int64
	Owner      string
	ImageRef   string
	FaceIndex  int
	Embedding  []float32
	BBox       []float64 // [x1, y1, x2, y2] in raw pixel coordinates
	DetScore   float64
	PersonID   string // empty if unassigned
	Status     facematch.Status
	Similarity float64
	Confirmed  bool
	CreatedAt  time.Time
}

// FaceAssignment is the identity link written to a face.
type FaceAssignment struct {
	PersonID   string // empty clears the link
	Status     facematch.Status
	Similarity float64
	Confirmed  bool
}

// AppendResult reports the outcome of a bank write.
type AppendResult struct {
	Added    bool // false when the vector was a duplicate
	BankSize int
	Version  int64
}
