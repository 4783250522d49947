package facematch

import (
	"context"
	"sort"
)

// DefaultTopN is the number of candidates offered for quick-pick in the UI.
const DefaultTopN = 3

// Identity is a named person with its embedding bank, as read from the
// identity store.
type Identity struct {
	ID   string
	Name string
	Bank Bank
}

// Candidate is a single ranking entry for one match attempt.
type Candidate struct {
	IdentityID string  `json:"identityId"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// Ranking is the scored view of one query against a set of identities.
type Ranking struct {
	// Evaluable is false when nothing could be compared: empty or invalid
	// query, or no identity with a non-empty bank.
	Evaluable  bool
	Reason     error
	Candidates []Candidate // every scored identity, best first
	Compared   int         // number of identities actually scored
}

// Best returns the top candidate, or nil.
func (r *Ranking) Best() *Candidate {
	if len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

// BestScore returns the top similarity, or 0.
func (r *Ranking) BestScore() float64 {
	if len(r.Candidates) == 0 {
		return 0
	}
	return r.Candidates[0].Similarity
}

// SecondBestScore returns the runner-up similarity, or 0.
func (r *Ranking) SecondBestScore() float64 {
	if len(r.Candidates) < 2 {
		return 0
	}
	return r.Candidates[1].Similarity
}

// Top returns at most n leading candidates.
func (r *Ranking) Top(n int) []Candidate {
	if n <= 0 || n > len(r.Candidates) {
		n = len(r.Candidates)
	}
	out := make([]Candidate, n)
	copy(out, r.Candidates[:n])
	return out
}

// IdentityScore returns the best similarity between query and any vector in
// the bank or its centroid. ok is false for an empty bank.
func IdentityScore(query []float32, bank *Bank) (score float64, ok bool) {
	if bank.IsEmpty() {
		return 0, false
	}
	best := -1.0
	for _, v := range bank.Vectors {
		if s := CosineSimilarity(query, v); s > best {
			best = s
		}
	}
	if len(bank.Centroid) > 0 {
		if s := CosineSimilarity(query, bank.Centroid); s > best {
			best = s
		}
	}
	return best, true
}

// RankCandidates scores query against every identity and sorts the result
// by similarity descending. Identities with an empty bank are skipped.
func RankCandidates(query []float32, identities []Identity) Ranking {
	if err := ValidateEmbedding(query); err != nil {
		return Ranking{Reason: err}
	}

	candidates := make([]Candidate, 0, len(identities))
	for i := range identities {
		id := &identities[i]
		score, ok := IdentityScore(query, &id.Bank)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			IdentityID: id.ID,
			Name:       id.Name,
			Similarity: score,
		})
	}

	if len(candidates) == 0 {
		return Ranking{Reason: ErrNoIdentitiesToCompare}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		if candidates[i].Name != candidates[j].Name {
			return candidates[i].Name < candidates[j].Name
		}
		return candidates[i].IdentityID < candidates[j].IdentityID
	})

	return Ranking{
		Evaluable:  true,
		Candidates: candidates,
		Compared:   len(candidates),
	}
}

// CandidateSource supplies the identities a query should be compared with.
// The linear source returns every identity; an approximate index may return
// a shortlist without changing the decision policy.
type CandidateSource interface {
	Candidates(ctx context.Context, query []float32) ([]Identity, error)
}

// LinearSource compares every query against a fixed identity snapshot.
type LinearSource []Identity

// Candidates returns the whole snapshot.
func (s LinearSource) Candidates(_ context.Context, _ []float32) ([]Identity, error) {
	return s, nil
}

// CountWithBank returns how many identities have a non-empty bank.
func CountWithBank(identities []Identity) int {
	n := 0
	for i := range identities {
		if !identities[i].Bank.IsEmpty() {
			n++
		}
	}
	return n
}
