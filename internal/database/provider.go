package database

import (
	"context"
	"errors"
	"fmt"
)

// HealthChecker is implemented by backends that can report connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

var (
	postgresPersonWriter func() PersonWriter
	postgresFaceWriter   func() FaceWriter
	postgresHealth       HealthChecker
	postgresInitialized  bool
)

var errNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(
	personWriter func() PersonWriter,
	faceWriter func() FaceWriter,
	health HealthChecker,
) {
	postgresPersonWriter = personWriter
	postgresFaceWriter = faceWriter
	postgresHealth = health
	postgresInitialized = true
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetPersonReader returns a PersonReader from the PostgreSQL backend
func GetPersonReader(ctx context.Context) (PersonReader, error) {
	return GetPersonWriter(ctx)
}

// GetPersonWriter returns a PersonWriter from the PostgreSQL backend
func GetPersonWriter(_ context.Context) (PersonWriter, error) {
	if !postgresInitialized {
		return nil, errNotInitialized
	}
	if postgresPersonWriter == nil {
		return nil, fmt.Errorf("PostgreSQL person writer not registered")
	}
	return postgresPersonWriter(), nil
}

// GetFaceReader returns a FaceReader from the PostgreSQL backend
func GetFaceReader(ctx context.Context) (FaceReader, error) {
	return GetFaceWriter(ctx)
}

// GetFaceWriter returns a FaceWriter from the PostgreSQL backend
func GetFaceWriter(_ context.Context) (FaceWriter, error) {
	if !postgresInitialized {
		return nil, errNotInitialized
	}
	if postgresFaceWriter == nil {
		return nil, fmt.Errorf("PostgreSQL face writer not registered")
	}
	return postgresFaceWriter(), nil
}

// Ping checks backend connectivity.
func Ping(ctx context.Context) error {
	if !postgresInitialized || postgresHealth == nil {
		return errNotInitialized
	}
	return postgresHealth.Ping(ctx)
}
