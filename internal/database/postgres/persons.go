package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/facematch"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// PersonRepository provides PostgreSQL-backed identity storage.
type PersonRepository struct {
	pool *Pool
}

// NewPersonRepository creates a new PostgreSQL person repository.
func NewPersonRepository(pool *Pool) *PersonRepository {
	return &PersonRepository{pool: pool}
}

// errCorruptBank marks a person row whose stored bank cannot be parsed.
var errCorruptBank = errors.New("corrupt bank")

const personColumns = `id, owner, name, normalized_name, bank, version, created_at, updated_at`

// scanPerson scans a single row into a StoredPerson. The bank is normalized
// here, so legacy flat rows never reach the matcher.
func scanPerson(scanner interface{ Scan(...any) error }) (database.StoredPerson, error) {
	var p database.StoredPerson
	var rawBank []byte

	if err := scanner.Scan(
		&p.ID,
		&p.Owner,
		&p.Name,
		&p.NormalizedName,
		&rawBank,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return p, fmt.Errorf("scan person: %w", err)
	}

	bank, err := facematch.ParseBank(rawBank)
	if err != nil {
		return p, fmt.Errorf("parse bank of person %s: %w: %w", p.ID, errCorruptBank, err)
	}
	p.Bank = bank
	return p, nil
}

// centroidValue converts a centroid into a nullable vector parameter.
func centroidValue(bank facematch.Bank) any {
	if len(bank.Centroid) == 0 {
		return nil
	}
	return pgvector.NewVector(bank.Centroid)
}

// ListPersons returns every person of an owner, ordered by name.
func (r *PersonRepository) ListPersons(ctx context.Context, owner string) ([]database.StoredPerson, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+personColumns+` FROM persons WHERE owner = $1 ORDER BY name, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	return collectPersons(rows)
}

// personRows is the part of *sql.Rows the person listing reads.
type personRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// collectPersons scans every row. A person whose bank is corrupt is logged
// and left out, so one bad row does not hide the rest of the owner.
func collectPersons(rows personRows) ([]database.StoredPerson, error) {
	var persons []database.StoredPerson
	for rows.Next() {
		p, err := scanPerson(rows)
		if errors.Is(err, errCorruptBank) {
			log.Printf("Warning: skipping person %s: %v", p.ID, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

func (r *PersonRepository) getOne(ctx context.Context, query string, args ...any) (*database.StoredPerson, error) {
	p, err := scanPerson(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPerson retrieves a person by ID, returns nil if not found.
func (r *PersonRepository) GetPerson(ctx context.Context, id string) (*database.StoredPerson, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return r.getOne(ctx, `SELECT `+personColumns+` FROM persons WHERE id = $1`, id)
}

// FindPersonByName looks a person up by normalized name within an owner.
func (r *PersonRepository) FindPersonByName(ctx context.Context, owner, name string) (*database.StoredPerson, error) {
	return r.getOne(ctx,
		`SELECT `+personColumns+` FROM persons WHERE owner = $1 AND normalized_name = $2`,
		owner, facematch.NormalizePersonName(name),
	)
}

// CountPersons returns the number of persons of an owner.
func (r *PersonRepository) CountPersons(ctx context.Context, owner string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM persons WHERE owner = $1", owner).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count persons: %w", err)
	}
	return count, nil
}

// CreatePerson creates a person with an optional first embedding.
func (r *PersonRepository) CreatePerson(
	ctx context.Context, owner, name string, initial []float32,
) (*database.StoredPerson, error) {
	var bank facematch.Bank
	if len(initial) > 0 {
		if _, err := bank.Append(initial, facematch.DefaultDuplicateSimilarity); err != nil {
			return nil, err
		}
	}
	rawBank, err := facematch.MarshalBank(bank)
	if err != nil {
		return nil, fmt.Errorf("marshal bank: %w", err)
	}

	p, err := scanPerson(r.pool.QueryRow(ctx, `
		INSERT INTO persons (id, owner, name, normalized_name, bank, centroid, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		RETURNING `+personColumns,
		uuid.NewString(),
		owner,
		facematch.CleanDisplayName(name),
		facematch.NormalizePersonName(name),
		string(rawBank),
		centroidValue(bank),
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%s: %w", name, database.ErrPersonExists)
		}
		return nil, fmt.Errorf("insert person: %w", err)
	}
	return &p, nil
}

// LoadBank returns the current bank and version of a person.
func (r *PersonRepository) LoadBank(ctx context.Context, id string) (*database.StoredPerson, error) {
	return r.GetPerson(ctx, id)
}

// SwapBank stores bank only if the stored version still equals expected.
func (r *PersonRepository) SwapBank(ctx context.Context, id string, expected int64, bank facematch.Bank) (bool, error) {
	rawBank, err := facematch.MarshalBank(bank)
	if err != nil {
		return false, fmt.Errorf("marshal bank: %w", err)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE persons
		SET bank = $3, centroid = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`, id, expected, string(rawBank), centroidValue(bank))
	if err != nil {
		return false, fmt.Errorf("update bank: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// AppendToBank folds vector into the person's bank with compare-and-swap retries.
func (r *PersonRepository) AppendToBank(
	ctx context.Context, id string, vector []float32, dupThreshold float64,
) (database.AppendResult, error) {
	return database.AppendWithRetry(ctx, r, id, vector, dupThreshold)
}

// DeletePerson removes a person. Faces linked to it are unlinked by the
// foreign key.
func (r *PersonRepository) DeletePerson(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	result, err := r.pool.Exec(ctx, "DELETE FROM persons WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	return nil
}
