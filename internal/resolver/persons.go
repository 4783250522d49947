package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/facematch"
)

// PersonSummary describes an identity without its vectors.
type PersonSummary struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	BankSize  int       `json:"bank_size"`
	Dim       int       `json:"dim"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func summarize(p *database.StoredPerson) PersonSummary {
	return PersonSummary{
		ID:        p.ID,
		Owner:     p.Owner,
		Name:      p.Name,
		BankSize:  p.Bank.Len(),
		Dim:       p.Bank.Dim(),
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// ListPersons returns the identities of owner.
func (s *Service) ListPersons(ctx context.Context, owner string) ([]PersonSummary, error) {
	persons, err := s.persons.ListPersons(ctx, ownerOrDefault(owner))
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	out := make([]PersonSummary, len(persons))
	for i := range persons {
		out[i] = summarize(&persons[i])
	}
	return out, nil
}

// CreatePerson creates an identity, optionally seeded with one embedding.
func (s *Service) CreatePerson(ctx context.Context, owner, name string, embedding []float32) (*PersonSummary, error) {
	if facematch.CleanDisplayName(name) == "" {
		return nil, ErrInvalidName
	}
	if len(embedding) > 0 {
		if err := facematch.ValidateEmbedding(embedding); err != nil {
			return nil, err
		}
	}

	owner = ownerOrDefault(owner)
	person, err := s.persons.CreatePerson(ctx, owner, name, embedding)
	if err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	s.cache.Invalidate(owner)

	summary := summarize(person)
	return &summary, nil
}

// DeletePerson removes an identity. Faces linked to it lose the link.
func (s *Service) DeletePerson(ctx context.Context, id string) error {
	person, err := s.persons.GetPerson(ctx, id)
	if err != nil {
		return fmt.Errorf("get person: %w", err)
	}
	if person == nil {
		return fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	if err := s.persons.DeletePerson(ctx, id); err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	s.cache.Invalidate(person.Owner)
	return nil
}
