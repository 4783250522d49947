package facematch

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DetectedFace is one face reported by the detector for an image.
type DetectedFace struct {
	Index     int       `json:"face_index"`
	Box       []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	Embedding []float32 `json:"embedding"`
	DetScore  float64   `json:"det_score"`
	Accepted  bool      `json:"accepted"`
}

// ImageInput is everything needed to resolve one image.
type ImageInput struct {
	Ref    string
	Width  int
	Height int
	Faces  []DetectedFace
}

// FaceResult is the decision for one numbered face.
type FaceResult struct {
	FaceNumber    int       `json:"faceNumber"` // 1-based, after ordering
	DetectorIndex int       `json:"faceIndex"`
	Box           []float64 `json:"bbox"`
	DetScore      float64   `json:"detScore"`
	Embedding     []float32 `json:"-"`
	Decision
}

// ImageResult collects the face decisions for one image.
type ImageResult struct {
	Ref           string       `json:"ref"`
	DetectedFaces int          `json:"detectedFaces"`
	ValidFaces    int          `json:"validFaces"`
	Faces         []FaceResult `json:"faces"`
}

// Options configure image resolution.
type Options struct {
	Thresholds Thresholds
	Order      Order
	// MinDetScore excludes faces the detector was unsure about, in addition
	// to faces it flagged as not accepted.
	MinDetScore float64
}

// DefaultOptions returns default thresholds with left-to-right ordering.
func DefaultOptions() Options {
	return Options{Thresholds: DefaultThresholds(), Order: OrderLeftToRight}
}

// ResolveImage orders the accepted faces of one image, decides each one and
// then applies the single-reference gate so a lone known identity can be
// auto-matched to at most one face of the image.
func ResolveImage(ctx context.Context, img ImageInput, src CandidateSource, opts Options) ImageResult {
	result := ImageResult{Ref: img.Ref, DetectedFaces: len(img.Faces)}

	valid := make([]DetectedFace, 0, len(img.Faces))
	for _, f := range img.Faces {
		if !f.Accepted || f.DetScore < opts.MinDetScore {
			continue
		}
		valid = append(valid, f)
	}
	SortFaces(valid, opts.Order)
	result.ValidFaces = len(valid)

	result.Faces = make([]FaceResult, len(valid))
	for i, f := range valid {
		result.Faces[i] = FaceResult{
			FaceNumber:    i + 1,
			DetectorIndex: f.Index,
			Box:           f.Box,
			DetScore:      f.DetScore,
			Embedding:     f.Embedding,
			Decision:      resolveFace(ctx, f.Embedding, src, opts.Thresholds),
		}
	}

	applySingleReferenceGate(result.Faces, opts.Thresholds)
	return result
}

// resolveFace decides one face. Store failures degrade to unknown.
func resolveFace(ctx context.Context, embedding []float32, src CandidateSource, t Thresholds) Decision {
	if err := ValidateEmbedding(embedding); err != nil {
		return Unknown(err)
	}
	identities, err := src.Candidates(ctx, embedding)
	if err != nil {
		return Unknown(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}
	return Decide(RankCandidates(embedding, identities), t)
}

// applySingleReferenceGate keeps at most one single-reference match per
// image: the best-scoring face, and only when it clears MatchThreshold and
// beats the runner-up face by SingleReferenceMargin. Every other matched
// face is demoted to ambiguous. A face alone in its image keeps the lower
// SingleReferenceThreshold.
func applySingleReferenceGate(faces []FaceResult, t Thresholds) {
	var scored []int
	for i := range faces {
		if faces[i].SingleReference {
			scored = append(scored, i)
		}
	}
	if len(scored) < 2 {
		return
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return faces[scored[a]].score > faces[scored[b]].score
	})

	best := &faces[scored[0]].Decision
	runnerUp := faces[scored[1]].score
	if best.Status == StatusMatched &&
		(best.score < t.MatchThreshold || best.score-runnerUp < t.SingleReferenceMargin) {
		best.demoteToAmbiguous()
	}
	for _, idx := range scored[1:] {
		if faces[idx].Status == StatusMatched {
			faces[idx].demoteToAmbiguous()
		}
	}
}

// ResolveBatch resolves images concurrently with at most workers goroutines.
// Results keep the input order. A failure in one image never affects another.
func ResolveBatch(ctx context.Context, images []ImageInput, src CandidateSource, opts Options, workers int) []ImageResult {
	results := make([]ImageResult, len(images))
	if len(images) == 0 {
		return results
	}
	workers = max(1, min(workers, len(images)))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = ResolveImage(ctx, images[i], src, opts)
			}
		}()
	}

	for i := range images {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// MatchedCount returns how many faces in the results were auto-matched.
func MatchedCount(results []ImageResult) int {
	n := 0
	for i := range results {
		for j := range results[i].Faces {
			if results[i].Faces[j].Status == StatusMatched {
				n++
			}
		}
	}
	return n
}
