package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-identity/internal/config"
	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/database/postgres"
	"github.com/kozaktomas/face-identity/internal/detector"
	"github.com/kozaktomas/face-identity/internal/resolver"
)

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	return cfg, nil
}

// openService connects to PostgreSQL, runs migrations and wires the
// resolution service with the detector client.
func openService(ctx context.Context, cfg *config.Config) (*resolver.Service, func(), error) {
	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(ctx, &cfg.Database); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	cleanup := func() {
		if pool := postgres.GetGlobalPool(); pool != nil {
			if err := pool.Close(); err != nil {
				fmt.Printf("Warning: %v\n", err)
			}
		}
	}

	persons, err := database.GetPersonWriter(ctx)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	faces, err := database.GetFaceWriter(ctx)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	det := detector.NewClient(cfg.Detector.URL, cfg.Detector.MinScore)
	return resolver.NewService(persons, faces, det, cfg), cleanup, nil
}
