package facematch

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultDuplicateSimilarity is the cosine similarity at or above which a new
// vector is treated as a repeat of one already in the bank.
const DefaultDuplicateSimilarity = 0.9995

// Bank is the set of confirmed embeddings recorded for one identity plus
// their cached centroid. Vectors are kept in insertion order, oldest first.
type Bank struct {
	Vectors  [][]float32
	Centroid []float32
}

// NewBank builds a bank from vectors, validating dimensions and computing
// the centroid. Duplicates are not removed; use Append for that.
func NewBank(vectors [][]float32) (Bank, error) {
	var b Bank
	for i, v := range vectors {
		if err := ValidateEmbedding(v); err != nil {
			return Bank{}, fmt.Errorf("vector %d: %w", i, err)
		}
		if len(b.Vectors) > 0 && len(v) != b.Dim() {
			return Bank{}, fmt.Errorf("vector %d: %w: got %d, bank has %d", i, ErrDimensionMismatch, len(v), b.Dim())
		}
		b.Vectors = append(b.Vectors, cloneVector(v))
	}
	b.Centroid = ComputeCentroid(b.Vectors)
	return b, nil
}

// Len returns the number of vectors in the bank.
func (b *Bank) Len() int {
	return len(b.Vectors)
}

// Dim returns the dimension of the bank, or 0 when empty.
func (b *Bank) Dim() int {
	if len(b.Vectors) == 0 {
		return 0
	}
	return len(b.Vectors[0])
}

// IsEmpty reports whether the bank holds no vectors.
func (b *Bank) IsEmpty() bool {
	return len(b.Vectors) == 0
}

// Clone returns a deep copy so callers can mutate without touching a shared snapshot.
func (b *Bank) Clone() Bank {
	out := Bank{
		Vectors:  make([][]float32, len(b.Vectors)),
		Centroid: cloneVector(b.Centroid),
	}
	for i, v := range b.Vectors {
		out.Vectors[i] = cloneVector(v)
	}
	return out
}

// IsDuplicate reports whether v repeats a vector already in the bank.
func (b *Bank) IsDuplicate(v []float32, threshold float64) bool {
	for _, existing := range b.Vectors {
		if roundedEqual(existing, v) {
			return true
		}
		if CosineSimilarity(existing, v) >= threshold {
			return true
		}
	}
	return false
}

// Append adds v to the bank unless it duplicates an existing vector.
// Returns added=false for a duplicate. On error the bank is left untouched.
func (b *Bank) Append(v []float32, dupThreshold float64) (bool, error) {
	if err := ValidateEmbedding(v); err != nil {
		return false, err
	}
	if !b.IsEmpty() && len(v) != b.Dim() {
		return false, fmt.Errorf("%w: got %d, bank has %d", ErrDimensionMismatch, len(v), b.Dim())
	}
	if dupThreshold <= 0 {
		dupThreshold = DefaultDuplicateSimilarity
	}
	if b.IsDuplicate(v, dupThreshold) {
		return false, nil
	}

	b.Vectors = append(b.Vectors, cloneVector(v))
	b.Centroid = ComputeCentroid(b.Vectors)
	return true, nil
}

// ComputeCentroid returns the coordinate-wise mean of vectors rounded to
// ScorePrecision places, or nil for an empty input. Vectors whose dimension
// differs from the first one are ignored.
func ComputeCentroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil
	}

	sums := make([]float64, dim)
	count := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sums[i] += float64(x)
		}
		count++
	}

	centroid := make([]float32, dim)
	for i := range sums {
		centroid[i] = float32(RoundTo(sums[i]/float64(count), ScorePrecision))
	}
	return centroid
}

// ParseBank decodes a stored bank. Both the nested shape [[...], [...]]
// and the legacy flat shape [...] (a bank of size one) are accepted; null
// and empty input yield an empty bank.
func ParseBank(raw []byte) (Bank, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Bank{}, nil
	}

	var nested [][]float32
	if err := json.Unmarshal(raw, &nested); err == nil {
		return NewBank(nested)
	}

	var flat []float32
	if err := json.Unmarshal(raw, &flat); err != nil {
		return Bank{}, fmt.Errorf("%w: unrecognised bank shape: %w", ErrInvalidEmbedding, err)
	}
	if len(flat) == 0 {
		return Bank{}, nil
	}
	return NewBank([][]float32{flat})
}

// MarshalBank encodes the bank vectors in the nested shape.
func MarshalBank(b Bank) ([]byte, error) {
	vectors := b.Vectors
	if vectors == nil {
		vectors = [][]float32{}
	}
	data, err := json.Marshal(vectors)
	if err != nil {
		return nil, fmt.Errorf("marshal bank: %w", err)
	}
	return data, nil
}

func cloneVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
