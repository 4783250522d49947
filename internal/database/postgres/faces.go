package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/facematch"
)

// FaceRepository provides PostgreSQL-backed storage of detected faces.
type FaceRepository struct {
	pool *Pool
}

// NewFaceRepository creates a new PostgreSQL face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

const faceColumns = `id, owner, image_ref, face_index, embedding, bbox, det_score,
	person_id, status, similarity, confirmed, created_at`

// scanFaceRow scans a single row into a StoredFace.
func scanFaceRow(scanner interface{ Scan(...any) error }) (database.StoredFace, error) {
	var face database.StoredFace
	var vec pgvector.Vector
	var bbox pq.Float64Array
	var personID sql.NullString
	var status string

	if err := scanner.Scan(
		&face.ID,
		&face.Owner,
		&face.ImageRef,
		&face.FaceIndex,
		&vec,
		&bbox,
		&face.DetScore,
		&personID,
		&status,
		&face.Similarity,
		&face.Confirmed,
		&face.CreatedAt,
	); err != nil {
		return face, fmt.Errorf("scan face: %w", err)
	}

	face.Embedding = vec.Slice()
	face.BBox = []float64(bbox)
	face.Status = facematch.Status(status)
	if personID.Valid {
		face.PersonID = personID.String
	}
	return face, nil
}

func scanFaces(rows *sql.Rows) ([]database.StoredFace, error) {
	var faces []database.StoredFace
	for rows.Next() {
		face, err := scanFaceRow(rows)
		if err != nil {
			return nil, err
		}
		faces = append(faces, face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

// nullablePersonID maps an empty person ID to NULL.
func nullablePersonID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

// GetFace retrieves a face by ID, returns nil if not found.
func (r *FaceRepository) GetFace(ctx context.Context, id int64) (*database.StoredFace, error) {
	face, err := scanFaceRow(r.pool.QueryRow(ctx, `SELECT `+faceColumns+` FROM faces WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &face, nil
}

// ListFacesByImage returns the faces of one image ordered by face index.
func (r *FaceRepository) ListFacesByImage(ctx context.Context, owner, imageRef string) ([]database.StoredFace, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+faceColumns+` FROM faces WHERE owner = $1 AND image_ref = $2 ORDER BY face_index`,
		owner, imageRef,
	)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// CountFaces returns the total number of faces stored.
func (r *FaceRepository) CountFaces(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM faces").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// SaveFaces stores the faces of an image, replacing the unconfirmed faces
// stored for that image. A confirmed face keeps its row, so its identity
// link survives re-resolution.
func (r *FaceRepository) SaveFaces(
	ctx context.Context, owner, imageRef string, faces []database.StoredFace,
) ([]database.StoredFace, error) {
	var saved []database.StoredFace
	err := r.pool.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM faces WHERE owner = $1 AND image_ref = $2 AND NOT confirmed",
			owner, imageRef,
		); err != nil {
			return fmt.Errorf("delete existing faces: %w", err)
		}
		var err error
		saved, err = upsertFaces(ctx, tx, owner, imageRef, faces)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// upsertFaces inserts faces and returns the stored rows. Where a confirmed
// face already holds the face index, the stored row is returned unchanged.
func upsertFaces(
	ctx context.Context, tx *sql.Tx, owner, imageRef string, faces []database.StoredFace,
) ([]database.StoredFace, error) {
	saved := make([]database.StoredFace, 0, len(faces))

	for i := range faces {
		face := faces[i]
		status := face.Status
		if status == "" {
			status = facematch.StatusUnknown
		}

		stored, err := scanFaceRow(tx.QueryRowContext(ctx, `
			INSERT INTO faces (owner, image_ref, face_index, embedding, bbox, det_score,
			                   person_id, status, similarity, confirmed)
			VALUES ($1, $2, $3, $4::vector, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (owner, image_ref, face_index) DO UPDATE SET face_index = faces.face_index
			RETURNING `+faceColumns,
			owner,
			imageRef,
			face.FaceIndex,
			pgvector.NewVector(face.Embedding),
			pq.Array(face.BBox),
			face.DetScore,
			nullablePersonID(face.PersonID),
			string(status),
			face.Similarity,
			face.Confirmed,
		))
		if err != nil {
			return nil, fmt.Errorf("insert face %d: %w", face.FaceIndex, err)
		}
		saved = append(saved, stored)
	}

	return saved, nil
}

// AssignFace writes the identity link of a face.
func (r *FaceRepository) AssignFace(ctx context.Context, id int64, a database.FaceAssignment) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE faces
		SET person_id = $2, status = $3, similarity = $4, confirmed = $5
		WHERE id = $1
	`, id, nullablePersonID(a.PersonID), string(a.Status), a.Similarity, a.Confirmed)
	if err != nil {
		return fmt.Errorf("update face: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("face %d: %w", id, database.ErrNotFound)
	}
	return nil
}
