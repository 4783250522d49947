package database

import (
	"context"

	"github.com/kozaktomas/face-identity/internal/facematch"
)

// PersonReader provides read-only access to identities
type PersonReader interface {
	// ListPersons returns every person of an owner, ordered by name
	ListPersons(ctx context.Context, owner string) ([]StoredPerson, error)
	// GetPerson retrieves a person by ID, returns nil if not found
	GetPerson(ctx context.Context, id string) (*StoredPerson, error)
	// FindPersonByName looks a person up by normalized name within an owner, returns nil if not found
	FindPersonByName(ctx context.Context, owner, name string) (*StoredPerson, error)
	// CountPersons returns the number of persons of an owner
	CountPersons(ctx context.Context, owner string) (int, error)
}

// BankStore is the compare-and-swap primitive behind AppendToBank.
type BankStore interface {
	// LoadBank returns the current bank of a person and its version
	LoadBank(ctx context.Context, id string) (*StoredPerson, error)
	// SwapBank stores bank only if the stored version still equals expected.
	// Returns false without error when another writer got there first.
	SwapBank(ctx context.Context, id string, expected int64, bank facematch.Bank) (bool, error)
}

// PersonWriter provides write access to identities
type PersonWriter interface {
	PersonReader
	BankStore

	// CreatePerson creates a person with an optional first embedding.
	// Returns ErrPersonExists when the normalized name is already taken.
	CreatePerson(ctx context.Context, owner, name string, initial []float32) (*StoredPerson, error)

	// AppendToBank folds vector into the person's bank, dedup included
	AppendToBank(ctx context.Context, id string, vector []float32, dupThreshold float64) (AppendResult, error)

	// DeletePerson removes a person and unlinks its faces
	DeletePerson(ctx context.Context, id string) error
}

// FaceReader provides read-only access to detected faces
type FaceReader interface {
	// GetFace retrieves a face by ID, returns nil if not found
	GetFace(ctx context.Context, id int64) (*StoredFace, error)
	// ListFacesByImage returns the faces of one image ordered by face index
	ListFacesByImage(ctx context.Context, owner, imageRef string) ([]StoredFace, error)
	// CountFaces returns the total number of faces stored
	CountFaces(ctx context.Context) (int, error)
}

// FaceWriter provides write access to detected faces
type FaceWriter interface {
	FaceReader

	// SaveFaces stores the faces of an image, replacing any previous
	// unconfirmed ones. Confirmed faces are kept as stored.
	// Returns the faces with their assigned IDs.
	SaveFaces(ctx context.Context, owner, imageRef string, faces []StoredFace) ([]StoredFace, error)

	// AssignFace writes the identity link of a face
	AssignFace(ctx context.Context, id int64, a FaceAssignment) error
}
