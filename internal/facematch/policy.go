package facematch

import (
	"errors"
	"fmt"
)

// Thresholds are the tunable knobs of the decision policy.
type Thresholds struct {
	// MatchThreshold is the minimum best score when two or more identities
	// are compared.
	MatchThreshold float64
	// MinMargin is the minimum gap between the best and second-best identity.
	MinMargin float64
	// SingleReferenceThreshold applies when exactly one identity exists.
	SingleReferenceThreshold float64
	// SingleReferenceMargin is the minimum gap between the best-scoring face
	// and the runner-up face of the same image in the single-reference regime.
	SingleReferenceMargin float64
	// DuplicateSimilarity is the bank dedup threshold.
	DuplicateSimilarity float64
	// TopN is the number of quick-pick candidates for ambiguous results.
	TopN int
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MatchThreshold:           0.95,
		MinMargin:                0.05,
		SingleReferenceThreshold: 0.5,
		SingleReferenceMargin:    0.005,
		DuplicateSimilarity:      DefaultDuplicateSimilarity,
		TopN:                     DefaultTopN,
	}
}

// Validate checks that every threshold is inside its usable range.
func (t Thresholds) Validate() error {
	var errs []error
	if t.MatchThreshold <= 0 || t.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("match threshold %v out of range (0, 1]", t.MatchThreshold))
	}
	if t.MinMargin < 0 || t.MinMargin >= 1 {
		errs = append(errs, fmt.Errorf("min margin %v out of range [0, 1)", t.MinMargin))
	}
	if t.SingleReferenceThreshold <= 0 || t.SingleReferenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("single reference threshold %v out of range (0, 1]", t.SingleReferenceThreshold))
	}
	if t.SingleReferenceMargin < 0 || t.SingleReferenceMargin >= 1 {
		errs = append(errs, fmt.Errorf("single reference margin %v out of range [0, 1)", t.SingleReferenceMargin))
	}
	if t.DuplicateSimilarity <= 0 || t.DuplicateSimilarity > 1 {
		errs = append(errs, fmt.Errorf("duplicate similarity %v out of range (0, 1]", t.DuplicateSimilarity))
	}
	if t.TopN < 1 {
		errs = append(errs, fmt.Errorf("top N %d must be positive", t.TopN))
	}
	return errors.Join(errs...)
}

// Decision is the resolved outcome for one face.
type Decision struct {
	Status Status `json:"status"`
	// Identity is set only when Status is matched.
	Identity             *Candidate  `json:"identity,omitempty"`
	Similarity           float64     `json:"similarity"`
	SecondBestSimilarity float64     `json:"secondBestSimilarity"`
	SimilarityGap        float64     `json:"similarityGap"`
	TopCandidates        []Candidate `json:"topCandidates,omitempty"`
	PeopleCompared       int         `json:"peopleCompared"`
	// SingleReference is true when the one-identity regime was applied.
	SingleReference bool  `json:"singleReference"`
	Reason          error `json:"-"`

	best  *Candidate // unrounded leader, kept for cross-face gating
	score float64    // unrounded best score
}

// ReasonText returns the failure reason as a string, or "".
func (d *Decision) ReasonText() string {
	if d.Reason == nil {
		return ""
	}
	return d.Reason.Error()
}

// Unknown builds an unknown decision carrying reason.
func Unknown(reason error) Decision {
	return Decision{Status: StatusUnknown, Reason: reason}
}

// Decide turns a ranking into exactly one of matched, ambiguous or unknown.
//
// With two or more identities compared, a match needs best >= MatchThreshold
// and best-second >= MinMargin; a score that passes without the margin is
// ambiguous. With exactly one identity the SingleReferenceThreshold applies
// and the face is matched in isolation; ResolveImage then restricts the
// match to one face per image.
func Decide(r Ranking, t Thresholds) Decision {
	if !r.Evaluable {
		reason := r.Reason
		if reason == nil {
			reason = ErrNoIdentitiesToCompare
		}
		return Unknown(reason)
	}

	best := r.Best()
	bestScore := r.BestScore()
	secondScore := r.SecondBestScore()
	gap := bestScore - secondScore

	d := Decision{
		Status:               StatusUnknown,
		Similarity:           RoundTo(bestScore, ScorePrecision),
		SecondBestSimilarity: RoundTo(secondScore, ScorePrecision),
		SimilarityGap:        RoundTo(gap, ScorePrecision),
		PeopleCompared:       r.Compared,
		best:                 best,
		score:                bestScore,
	}

	if r.Compared == 1 {
		d.SingleReference = true
		if bestScore >= t.SingleReferenceThreshold {
			d.Status = StatusMatched
			d.Identity = roundedCandidate(*best)
		}
		return d
	}

	switch {
	case bestScore >= t.MatchThreshold && gap >= t.MinMargin:
		d.Status = StatusMatched
		d.Identity = roundedCandidate(*best)
	case bestScore >= t.MatchThreshold:
		d.Status = StatusAmbiguous
		d.TopCandidates = roundedCandidates(r.Top(t.TopN))
	}
	return d
}

// demoteToAmbiguous turns a single-reference candidate into a quick-pick
// suggestion of the lone identity.
func (d *Decision) demoteToAmbiguous() {
	d.Status = StatusAmbiguous
	d.Identity = nil
	if d.best != nil {
		d.TopCandidates = []Candidate{*roundedCandidate(*d.best)}
	}
}

func roundedCandidate(c Candidate) *Candidate {
	c.Similarity = RoundTo(c.Similarity, ScorePrecision)
	return &c
}

func roundedCandidates(cs []Candidate) []Candidate {
	out := make([]Candidate, len(cs))
	for i, c := range cs {
		out[i] = *roundedCandidate(c)
	}
	return out
}
