// Package facematch decides which known person a detected face belongs to.
// It scores embeddings against per-person embedding banks, applies the
// matched/ambiguous/unknown decision policy and resolves whole images.
// Everything here is pure computation over data handed in by the caller.
package facematch

import "errors"

// Status is the outcome of resolving one face. It is a closed set: callers
// switch over all three values.
type Status string

const (
	StatusMatched   Status = "matched"   // auto-applied identity
	StatusAmbiguous Status = "ambiguous" // needs a human pick from TopCandidates
	StatusUnknown   Status = "unknown"   // no usable match
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusMatched, StatusAmbiguous, StatusUnknown:
		return true
	}
	return false
}

// Order controls the presentational numbering of faces within an image.
type Order string

const (
	OrderLeftToRight Order = "ltr"
	OrderRightToLeft Order = "rtl"
)

// ParseOrder parses an order flag, defaulting to left-to-right.
func ParseOrder(s string) Order {
	switch s {
	case "rtl", "right-to-left", "right_to_left":
		return OrderRightToLeft
	default:
		return OrderLeftToRight
	}
}

var (
	// ErrInvalidEmbedding is returned for empty or non-finite vectors.
	ErrInvalidEmbedding = errors.New("invalid embedding")
	// ErrDimensionMismatch is returned when a vector does not fit a bank.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrNoIdentitiesToCompare marks a resolution with nothing to compare against.
	ErrNoIdentitiesToCompare = errors.New("no identities to compare")
	// ErrStoreUnavailable wraps identity store failures.
	ErrStoreUnavailable = errors.New("identity store unavailable")
)
