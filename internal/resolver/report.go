package resolver

import "github.com/kozaktomas/face-identity/internal/facematch"

// FaceReport is the caller-facing view of one resolved face.
type FaceReport struct {
	FaceID               int64                 `json:"faceId,omitempty"` // set when the face was persisted
	FaceNumber           int                   `json:"faceNumber"`
	FaceIndex            int                   `json:"faceIndex"`
	BBox                 []float64             `json:"bbox"`
	BBoxRel              []float64             `json:"bboxRel,omitempty"`
	DetScore             float64               `json:"detScore"`
	IdentityID           *string               `json:"identityId"`
	Name                 string                `json:"name"`
	Status               facematch.Status      `json:"status"`
	Similarity           float64               `json:"similarity"`
	SecondBestSimilarity float64               `json:"secondBestSimilarity"`
	SimilarityGap        float64               `json:"similarityGap"`
	TopCandidates        []facematch.Candidate `json:"topCandidates,omitempty"`
	PeopleCompared       int                   `json:"peopleCompared"`
	SingleReference      bool                  `json:"singleReference,omitempty"`
	Confirmed            bool                  `json:"confirmed,omitempty"` // a stored human confirmation was kept
	Reason               string                `json:"reason,omitempty"`
}

// ImageReport is the caller-facing view of one resolved image.
type ImageReport struct {
	Ref           string       `json:"ref"`
	Width         int          `json:"width,omitempty"`
	Height        int          `json:"height,omitempty"`
	DetectedFaces int          `json:"detectedFaces"`
	ValidFaces    int          `json:"validFaces"`
	Faces         []FaceReport `json:"faces"`
	Error         string       `json:"error,omitempty"`
}

// Summary counts face outcomes across a run.
type Summary struct {
	Images    int `json:"images"`
	Failed    int `json:"failed"`
	Faces     int `json:"faces"`
	Matched   int `json:"matched"`
	Ambiguous int `json:"ambiguous"`
	Unknown   int `json:"unknown"`
}

func newFaceReport(f *facematch.FaceResult, width, height int) FaceReport {
	r := FaceReport{
		FaceNumber:           f.FaceNumber,
		FaceIndex:            f.DetectorIndex,
		BBox:                 f.Box,
		DetScore:             f.DetScore,
		Status:               f.Status,
		Similarity:           f.Similarity,
		SecondBestSimilarity: f.SecondBestSimilarity,
		SimilarityGap:        f.SimilarityGap,
		TopCandidates:        f.TopCandidates,
		PeopleCompared:       f.PeopleCompared,
		SingleReference:      f.SingleReference,
		Reason:               f.ReasonText(),
	}
	if width > 0 && height > 0 {
		r.BBoxRel = facematch.ConvertPixelBBoxToRelative(f.Box, width, height)
	}
	if f.Identity != nil {
		id := f.Identity.IdentityID
		r.IdentityID = &id
		r.Name = f.Identity.Name
	}
	return r
}

func newImageReport(res *facematch.ImageResult, width, height int) ImageReport {
	report := ImageReport{
		Ref:           res.Ref,
		Width:         width,
		Height:        height,
		DetectedFaces: res.DetectedFaces,
		ValidFaces:    res.ValidFaces,
		Faces:         make([]FaceReport, len(res.Faces)),
	}
	for i := range res.Faces {
		report.Faces[i] = newFaceReport(&res.Faces[i], width, height)
	}
	return report
}

// Summarize counts the outcomes of reports.
func Summarize(reports []ImageReport) Summary {
	s := Summary{Images: len(reports)}
	for i := range reports {
		if reports[i].Error != "" {
			s.Failed++
		}
		for _, f := range reports[i].Faces {
			s.Faces++
			switch f.Status {
			case facematch.StatusMatched:
				s.Matched++
			case facematch.StatusAmbiguous:
				s.Ambiguous++
			case facematch.StatusUnknown:
				s.Unknown++
			}
		}
	}
	return s
}
