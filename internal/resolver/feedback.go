package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/facematch"
)

// ConfirmRequest names the identity a human picked for a face. PersonID
// wins over Name; an unknown Name creates a new identity.
type ConfirmRequest struct {
	PersonID string `json:"person_id"`
	Name     string `json:"name"`
}

// ConfirmResult reports what a confirmation changed.
type ConfirmResult struct {
	FaceID     int64   `json:"face_id"`
	PersonID   string  `json:"person_id"`
	Name       string  `json:"name"`
	Created    bool    `json:"created"`     // a new identity was created
	Learned    bool    `json:"learned"`     // the embedding was added to the bank
	BankSize   int     `json:"bank_size"`   // bank size after the confirmation
	Similarity float64 `json:"similarity"`  // score against the bank before learning
}

// ConfirmFace links a stored face to an identity and folds its embedding
// into that identity's bank. This is the only path that teaches a bank.
func (s *Service) ConfirmFace(ctx context.Context, faceID int64, req ConfirmRequest) (*ConfirmResult, error) {
	if s.faces == nil {
		return nil, ErrFacesUnavailable
	}

	face, err := s.faces.GetFace(ctx, faceID)
	if err != nil {
		return nil, fmt.Errorf("get face: %w", err)
	}
	if face == nil {
		return nil, fmt.Errorf("face %d: %w", faceID, database.ErrNotFound)
	}
	if err := facematch.ValidateEmbedding(face.Embedding); err != nil {
		return nil, fmt.Errorf("face %d: %w", faceID, err)
	}

	person, created, err := s.confirmTarget(ctx, face, req)
	if err != nil {
		return nil, err
	}

	result := &ConfirmResult{
		FaceID:   face.ID,
		PersonID: person.ID,
		Name:     person.Name,
		Created:  created,
		BankSize: person.Bank.Len(),
	}

	if created {
		result.Learned = true
		result.Similarity = 1
	} else {
		if score, ok := facematch.IdentityScore(face.Embedding, &person.Bank); ok {
			result.Similarity = facematch.RoundTo(score, facematch.ScorePrecision)
		}
		appended, err := s.bank.Append(ctx, person.ID, face.Embedding, s.thresholds.DuplicateSimilarity)
		if err != nil {
			return nil, fmt.Errorf("update bank of %s: %w", person.Name, err)
		}
		result.Learned = appended.Added
		result.BankSize = appended.BankSize
	}
	s.cache.Invalidate(face.Owner)

	err = s.faces.AssignFace(ctx, face.ID, database.FaceAssignment{
		PersonID:   person.ID,
		Status:     facematch.StatusMatched,
		Similarity: result.Similarity,
		Confirmed:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("assign face: %w", err)
	}

	log.Printf("Confirmed face %d as %s (created=%v, learned=%v, bank size %d)",
		face.ID, sanitizeForLog(person.Name), result.Created, result.Learned, result.BankSize)
	return result, nil
}

// confirmTarget finds or creates the identity a confirmation points to.
// A newly created identity already holds the face embedding.
func (s *Service) confirmTarget(
	ctx context.Context, face *database.StoredFace, req ConfirmRequest,
) (*database.StoredPerson, bool, error) {
	if req.PersonID != "" {
		person, err := s.persons.GetPerson(ctx, req.PersonID)
		if err != nil {
			return nil, false, fmt.Errorf("get person: %w", err)
		}
		if person == nil || person.Owner != face.Owner {
			return nil, false, fmt.Errorf("person %s: %w", req.PersonID, database.ErrNotFound)
		}
		return person, false, nil
	}

	name := facematch.CleanDisplayName(req.Name)
	if name == "" {
		return nil, false, ErrMissingIdentity
	}

	person, err := s.persons.FindPersonByName(ctx, face.Owner, name)
	if err != nil {
		return nil, false, fmt.Errorf("find person: %w", err)
	}
	if person != nil {
		return person, false, nil
	}

	person, err = s.persons.CreatePerson(ctx, face.Owner, name, face.Embedding)
	if errors.Is(err, database.ErrPersonExists) {
		// another confirmation created it first
		person, err = s.persons.FindPersonByName(ctx, face.Owner, name)
		if err != nil {
			return nil, false, fmt.Errorf("find person: %w", err)
		}
		if person == nil {
			return nil, false, fmt.Errorf("%s: %w", name, database.ErrNotFound)
		}
		return person, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create person: %w", err)
	}
	return person, true, nil
}

// RejectFace removes the identity link of a face without touching any bank.
func (s *Service) RejectFace(ctx context.Context, faceID int64) error {
	if s.faces == nil {
		return ErrFacesUnavailable
	}
	err := s.faces.AssignFace(ctx, faceID, database.FaceAssignment{Status: facematch.StatusUnknown})
	if err != nil {
		return fmt.Errorf("reject face %d: %w", faceID, err)
	}
	return nil
}

// ListImageFaces returns the stored faces of an image.
func (s *Service) ListImageFaces(ctx context.Context, owner, imageRef string) ([]database.StoredFace, error) {
	if s.faces == nil {
		return nil, ErrFacesUnavailable
	}
	faces, err := s.faces.ListFacesByImage(ctx, ownerOrDefault(owner), imageRef)
	if err != nil {
		return nil, fmt.Errorf("list faces: %w", err)
	}
	return faces, nil
}
