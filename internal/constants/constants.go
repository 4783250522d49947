// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel workers for image resolution
	WorkerPoolSize = 8

	// MaxImageSize is the maximum dimension (width or height) sent to the detector
	MaxImageSize = 1920

	// BankWriteRetries is the number of compare-and-swap attempts for a bank update
	BankWriteRetries = 5
)

// HNSW index constants
const (
	// HNSWMaxNeighbors (M) bounds the neighbor list of every graph node
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the candidate pool size of a graph search
	HNSWEfSearch = 100

	// HNSWShortlistSize is the initial number of graph neighbors fetched per query
	HNSWShortlistSize = 32

	// HNSWMaxShortlistSize caps the neighbor search when expanding for distinct identities
	HNSWMaxShortlistSize = 1024
)
