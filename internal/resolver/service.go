// Package resolver runs identity resolution against the identity store and
// handles the human feedback that teaches the embedding banks.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-identity/internal/config"
	"github.com/kozaktomas/face-identity/internal/constants"
	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/detector"
	"github.com/kozaktomas/face-identity/internal/facematch"
)

var (
	// ErrMissingIdentity is returned when a confirmation names no identity.
	ErrMissingIdentity = errors.New("person_id or name is required")
	// ErrInvalidName is returned for names that are empty after cleanup.
	ErrInvalidName = errors.New("name is required")
	// ErrDetectorUnavailable is returned when uploads arrive without a detector.
	ErrDetectorUnavailable = errors.New("face detector not configured")
	// ErrFacesUnavailable is returned when face records are needed but not stored.
	ErrFacesUnavailable = errors.New("face storage not configured")
)

// Detector finds faces in raw image bytes.
type Detector interface {
	Detect(ctx context.Context, imageData []byte) (*detector.Detection, error)
}

// Service resolves faces for one identity store.
type Service struct {
	persons     database.PersonWriter
	faces       database.FaceWriter // nil disables persistence
	detector    Detector            // nil disables uploads
	cache       *database.IndexCache
	bank        *BankWriter
	thresholds  facematch.Thresholds
	minDetScore float64
}

// NewService creates a resolution service. faces and det may be nil.
func NewService(persons database.PersonWriter, faces database.FaceWriter, det Detector, cfg *config.Config) *Service {
	return &Service{
		persons:     persons,
		faces:       faces,
		detector:    det,
		cache:       database.NewIndexCache(cfg.Matching.HNSWMinIdentities, cfg.Database.HNSWIndexPath),
		bank:        NewBankWriter(persons),
		thresholds:  cfg.Matching.Thresholds(),
		minDetScore: cfg.Detector.MinScore,
	}
}

// Thresholds returns the active decision policy.
func (s *Service) Thresholds() facematch.Thresholds {
	return s.thresholds
}

// ResolveOptions control one resolution run.
type ResolveOptions struct {
	Order   facematch.Order
	Persist bool // store faces and decisions so they can be confirmed later
	Workers int  // defaults to constants.WorkerPoolSize
}

func (o ResolveOptions) workers() int {
	if o.Workers <= 0 {
		return constants.WorkerPoolSize
	}
	return o.Workers
}

func ownerOrDefault(owner string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return constants.DefaultOwner
	}
	return owner
}

// ResolveImages decides every face of every image against the identities of
// owner. All images of the run see the same identity snapshot. A failing
// image or face never aborts the run.
func (s *Service) ResolveImages(
	ctx context.Context, owner string, images []facematch.ImageInput, opts ResolveOptions,
) []ImageReport {
	owner = ownerOrDefault(owner)
	start := time.Now()

	catalog := database.NewCatalog(s.persons, owner, s.cache, s.thresholds.TopN)
	matchOpts := facematch.Options{
		Thresholds:  s.thresholds,
		Order:       opts.Order,
		MinDetScore: s.minDetScore,
	}
	results := facematch.ResolveBatch(ctx, images, catalog, matchOpts, opts.workers())

	reports := make([]ImageReport, len(results))
	for i := range results {
		logFaceFailures(owner, &results[i])
		reports[i] = newImageReport(&results[i], images[i].Width, images[i].Height)
		if opts.Persist {
			s.persist(ctx, owner, &results[i], &reports[i])
		}
	}

	summary := Summarize(reports)
	log.Printf("Resolved %d images for owner %s in %v: %d faces, %d matched, %d ambiguous, %d unknown",
		summary.Images, sanitizeForLog(owner), time.Since(start).Round(time.Millisecond),
		summary.Faces, summary.Matched, summary.Ambiguous, summary.Unknown)
	return reports
}

func logFaceFailures(owner string, res *facematch.ImageResult) {
	for i := range res.Faces {
		f := &res.Faces[i]
		if errors.Is(f.Reason, facematch.ErrStoreUnavailable) {
			log.Printf("Warning: face %d of %s (owner %s) left unresolved: %v",
				f.FaceNumber, sanitizeForLog(res.Ref), sanitizeForLog(owner), f.Reason)
		}
	}
}

// persist stores the resolved faces of one image and records their IDs in
// the report. Failures are reported on the image, not returned.
func (s *Service) persist(ctx context.Context, owner string, res *facematch.ImageResult, report *ImageReport) {
	if s.faces == nil {
		report.Error = ErrFacesUnavailable.Error()
		return
	}
	if res.Ref == "" {
		report.Error = "image ref is required to store faces"
		return
	}

	faces := make([]database.StoredFace, len(res.Faces))
	for i := range res.Faces {
		f := &res.Faces[i]
		faces[i] = database.StoredFace{
			FaceIndex:  f.DetectorIndex,
			Embedding:  f.Embedding,
			BBox:       f.Box,
			DetScore:   f.DetScore,
			Status:     f.Status,
			Similarity: f.Similarity,
		}
		if f.Identity != nil {
			faces[i].PersonID = f.Identity.IdentityID
		}
	}

	saved, err := s.faces.SaveFaces(ctx, owner, res.Ref, faces)
	if err != nil {
		log.Printf("Warning: failed to save faces of %s: %v", sanitizeForLog(res.Ref), err)
		report.Error = "failed to save faces"
		return
	}
	for i := range saved {
		if i < len(report.Faces) {
			report.Faces[i].FaceID = saved[i].ID
			report.Faces[i].Confirmed = saved[i].Confirmed
		}
	}
}

// Upload is a raw image to run through the detector.
type Upload struct {
	Ref  string
	Data []byte
}

// ResolveUploads detects faces in each upload and resolves them. Images the
// detector cannot process are reported with an error.
func (s *Service) ResolveUploads(
	ctx context.Context, owner string, uploads []Upload, opts ResolveOptions,
) ([]ImageReport, error) {
	if s.detector == nil {
		return nil, ErrDetectorUnavailable
	}

	detections := make([]*detector.Detection, len(uploads))
	refs := make([]string, len(uploads))
	errs := make([]error, len(uploads))

	sem := make(chan struct{}, opts.workers())
	var wg sync.WaitGroup
	for i := range uploads {
		refs[i] = uploadRef(uploads[i], i)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			detections[i], errs[i] = s.detector.Detect(ctx, uploads[i].Data)
		}(i)
	}
	wg.Wait()

	var inputs []facematch.ImageInput
	var positions []int
	reports := make([]ImageReport, len(uploads))
	for i := range uploads {
		if errs[i] != nil {
			log.Printf("Warning: face detection failed for %s: %v", sanitizeForLog(refs[i]), errs[i])
			reports[i] = ImageReport{Ref: refs[i], Faces: []FaceReport{}, Error: fmt.Sprintf("face detection failed: %v", errs[i])}
			continue
		}
		inputs = append(inputs, detections[i].Input(refs[i]))
		positions = append(positions, i)
	}

	resolved := s.ResolveImages(ctx, owner, inputs, opts)
	for j, pos := range positions {
		reports[pos] = resolved[j]
	}
	return reports, nil
}

func uploadRef(u Upload, i int) string {
	if u.Ref != "" {
		return u.Ref
	}
	if ref, err := detector.ContentRef(u.Data); err == nil {
		return ref
	}
	return fmt.Sprintf("upload-%d", i+1)
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}
