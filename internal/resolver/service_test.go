package resolver

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/kozaktomas/face-identity/internal/config"
	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/database/mock"
	"github.com/kozaktomas/face-identity/internal/detector"
	"github.com/kozaktomas/face-identity/internal/facematch"
)

func testConfig() *config.Config {
	t := facematch.DefaultThresholds()
	return &config.Config{
		Matching: config.MatchingConfig{
			MatchThreshold:           t.MatchThreshold,
			MinMargin:                t.MinMargin,
			SingleReferenceThreshold: t.SingleReferenceThreshold,
			SingleReferenceMargin:    t.SingleReferenceMargin,
			DuplicateSimilarity:      t.DuplicateSimilarity,
			TopN:                     t.TopN,
		},
		Detector: config.DetectorConfig{MinScore: 0.5},
	}
}

func mustBank(t *testing.T, vectors ...[]float32) facematch.Bank {
	t.Helper()
	bank, err := facematch.NewBank(vectors)
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}
	return bank
}

func unit(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
}

func face(index int, x float64, embedding ...float32) facematch.DetectedFace {
	return facematch.DetectedFace{
		Index:     index,
		Box:       []float64{x, 0, x + 50, 50},
		Embedding: embedding,
		DetScore:  0.99,
		Accepted:  true,
	}
}

type fixture struct {
	persons *mock.MockPersonWriter
	faces   *mock.MockFaceWriter
	svc     *Service
	alice   string
	bob     string
}

func newFixture(t *testing.T, det Detector) *fixture {
	t.Helper()
	f := &fixture{
		persons: mock.NewMockPersonWriter(),
		faces:   mock.NewMockFaceWriter(),
	}
	f.alice = f.persons.AddPerson(database.StoredPerson{Owner: "default", Name: "Alice", Bank: mustBank(t, []float32{1, 0})})
	f.bob = f.persons.AddPerson(database.StoredPerson{Owner: "default", Name: "Bob", Bank: mustBank(t, []float32{0, 1})})
	f.svc = NewService(f.persons, f.faces, det, testConfig())
	return f
}

func TestResolveImages_MatchesAndPersists(t *testing.T) {
	f := newFixture(t, nil)
	images := []facematch.ImageInput{{
		Ref:    "party.jpg",
		Width:  400,
		Height: 100,
		Faces:  []facematch.DetectedFace{face(0, 200, 0, 1), face(1, 10, 1, 0)},
	}}

	reports := f.svc.ResolveImages(context.Background(), "", images, ResolveOptions{Persist: true})
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	if len(r.Faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(r.Faces))
	}

	left, right := r.Faces[0], r.Faces[1]
	if left.Name != "Alice" || left.IdentityID == nil || *left.IdentityID != f.alice {
		t.Errorf("left face should be Alice, got %+v", left)
	}
	if right.Name != "Bob" || right.Status != facematch.StatusMatched {
		t.Errorf("right face should be matched Bob, got %+v", right)
	}
	if left.BBoxRel[2] != 60.0/400 {
		t.Errorf("unexpected relative box %v", left.BBoxRel)
	}
	if left.FaceID == 0 || right.FaceID == 0 {
		t.Fatal("persisted faces should carry IDs")
	}

	stored, err := f.faces.GetFace(context.Background(), left.FaceID)
	if err != nil || stored == nil {
		t.Fatalf("GetFace: %v %v", stored, err)
	}
	if stored.PersonID != f.alice || stored.Confirmed || stored.Owner != "default" || stored.FaceIndex != 1 {
		t.Errorf("unexpected stored face %+v", stored)
	}
}

func TestResolveImages_StoreFailureDegradesToUnknown(t *testing.T) {
	f := newFixture(t, nil)
	f.persons.ListError = errors.New("connection refused")

	reports := f.svc.ResolveImages(context.Background(), "default", []facematch.ImageInput{
		{Ref: "a.jpg", Faces: []facematch.DetectedFace{face(0, 0, 1, 0)}},
		{Ref: "b.jpg", Faces: []facematch.DetectedFace{face(0, 0, 0, 1)}},
	}, ResolveOptions{})

	for _, r := range reports {
		if r.Faces[0].Status != facematch.StatusUnknown {
			t.Errorf("%s: status %s, want unknown", r.Ref, r.Faces[0].Status)
		}
		if !strings.Contains(r.Faces[0].Reason, "identity store unavailable") {
			t.Errorf("%s: reason %q", r.Ref, r.Faces[0].Reason)
		}
		if r.Faces[0].IdentityID != nil {
			t.Errorf("%s: unknown face must not carry an identity", r.Ref)
		}
	}
}

func TestResolveImages_PersistErrors(t *testing.T) {
	f := newFixture(t, nil)

	reports := f.svc.ResolveImages(context.Background(), "default",
		[]facematch.ImageInput{{Faces: []facematch.DetectedFace{face(0, 0, 1, 0)}}},
		ResolveOptions{Persist: true})
	if reports[0].Error == "" {
		t.Error("expected an error for an image without ref")
	}
	if reports[0].Faces[0].Status != facematch.StatusMatched {
		t.Error("resolution should still succeed")
	}

	f.faces.SaveError = errors.New("disk full")
	reports = f.svc.ResolveImages(context.Background(), "default",
		[]facematch.ImageInput{{Ref: "x.jpg", Faces: []facematch.DetectedFace{face(0, 0, 1, 0)}}},
		ResolveOptions{Persist: true})
	if reports[0].Error != "failed to save faces" {
		t.Errorf("unexpected error %q", reports[0].Error)
	}
}

func TestResolveImages_OwnersAreIsolated(t *testing.T) {
	f := newFixture(t, nil)
	reports := f.svc.ResolveImages(context.Background(), "someone-else",
		[]facematch.ImageInput{{Ref: "a.jpg", Faces: []facematch.DetectedFace{face(0, 0, 1, 0)}}},
		ResolveOptions{})

	got := reports[0].Faces[0]
	if got.Status != facematch.StatusUnknown || got.PeopleCompared != 0 {
		t.Errorf("expected unknown with nothing compared, got %+v", got)
	}
}

func persistOne(t *testing.T, f *fixture, ref string, embedding ...float32) int64 {
	t.Helper()
	reports := f.svc.ResolveImages(context.Background(), "default",
		[]facematch.ImageInput{{Ref: ref, Faces: []facematch.DetectedFace{face(0, 0, embedding...)}}},
		ResolveOptions{Persist: true})
	if reports[0].Error != "" {
		t.Fatalf("persist %s: %s", ref, reports[0].Error)
	}
	return reports[0].Faces[0].FaceID
}

func TestConfirmFace_NewNameCreatesIdentity(t *testing.T) {
	f := newFixture(t, nil)
	faceID := persistOne(t, f, "carol.jpg", 0.6, -0.8)

	res, err := f.svc.ConfirmFace(context.Background(), faceID, ConfirmRequest{Name: "  Carol  "})
	if err != nil {
		t.Fatalf("ConfirmFace: %v", err)
	}
	if !res.Created || !res.Learned || res.BankSize != 1 || res.Name != "Carol" {
		t.Errorf("unexpected result %+v", res)
	}

	stored, _ := f.faces.GetFace(context.Background(), faceID)
	if !stored.Confirmed || stored.PersonID != res.PersonID || stored.Status != facematch.StatusMatched {
		t.Errorf("face not confirmed: %+v", stored)
	}

	// the new identity is used by the next run
	reports := f.svc.ResolveImages(context.Background(), "default",
		[]facematch.ImageInput{{Ref: "carol2.jpg", Faces: []facematch.DetectedFace{face(0, 0, 0.6, -0.8)}}},
		ResolveOptions{})
	if got := reports[0].Faces[0]; got.Name != "Carol" || got.Status != facematch.StatusMatched {
		t.Errorf("expected Carol to be matched, got %+v", got)
	}
}

func TestResolveImages_RepersistKeepsConfirmedFaces(t *testing.T) {
	f := newFixture(t, nil)
	image := facematch.ImageInput{
		Ref:   "group.jpg",
		Faces: []facematch.DetectedFace{face(0, 0, 1, 0), face(1, 100, 0, 1)},
	}
	first := f.svc.ResolveImages(context.Background(), "default", []facematch.ImageInput{image}, ResolveOptions{Persist: true})
	confirmedID, otherID := first[0].Faces[0].FaceID, first[0].Faces[1].FaceID

	// the engine said Alice, a human says Carol
	res, err := f.svc.ConfirmFace(context.Background(), confirmedID, ConfirmRequest{Name: "Carol"})
	if err != nil {
		t.Fatalf("ConfirmFace: %v", err)
	}

	second := f.svc.ResolveImages(context.Background(), "default", []facematch.ImageInput{image}, ResolveOptions{Persist: true})
	if second[0].Error != "" {
		t.Fatalf("unexpected error: %s", second[0].Error)
	}
	kept, replaced := second[0].Faces[0], second[0].Faces[1]
	if kept.FaceID != confirmedID || !kept.Confirmed {
		t.Errorf("confirmed face should keep its row, got %+v", kept)
	}
	if replaced.FaceID == otherID || replaced.Confirmed {
		t.Errorf("unconfirmed face should be replaced, got %+v", replaced)
	}

	stored, err := f.faces.GetFace(context.Background(), confirmedID)
	if err != nil || stored == nil {
		t.Fatalf("GetFace: %v %v", stored, err)
	}
	if !stored.Confirmed || stored.PersonID != res.PersonID || stored.Status != facematch.StatusMatched {
		t.Errorf("confirmation was overwritten: %+v", stored)
	}

	faces, err := f.faces.ListFacesByImage(context.Background(), "default", "group.jpg")
	if err != nil {
		t.Fatalf("ListFacesByImage: %v", err)
	}
	if len(faces) != 2 {
		t.Errorf("expected 2 stored faces, got %d", len(faces))
	}
}

func TestConfirmFace_ExistingIdentityLearns(t *testing.T) {
	f := newFixture(t, nil)
	faceID := persistOne(t, f, "alice2.jpg", 0.8, 0.6)

	res, err := f.svc.ConfirmFace(context.Background(), faceID, ConfirmRequest{PersonID: f.alice})
	if err != nil {
		t.Fatalf("ConfirmFace: %v", err)
	}
	if res.Created || !res.Learned || res.BankSize != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if math.Abs(res.Similarity-0.8) > 1e-6 {
		t.Errorf("similarity = %f, want 0.8", res.Similarity)
	}

	// confirming the same embedding again is a no-op for the bank
	res, err = f.svc.ConfirmFace(context.Background(), faceID, ConfirmRequest{Name: "alice"})
	if err != nil {
		t.Fatalf("second ConfirmFace: %v", err)
	}
	if res.Learned || res.BankSize != 2 || res.PersonID != f.alice {
		t.Errorf("duplicate confirmation changed the bank: %+v", res)
	}
}

func TestConfirmFace_DimensionMismatchLeavesBank(t *testing.T) {
	f := newFixture(t, nil)
	faceID := persistOne(t, f, "odd.jpg", 1, 0, 0)

	_, err := f.svc.ConfirmFace(context.Background(), faceID, ConfirmRequest{PersonID: f.alice})
	if !errors.Is(err, facematch.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}

	alice, _ := f.persons.GetPerson(context.Background(), f.alice)
	if alice.Bank.Len() != 1 {
		t.Errorf("bank should be untouched, has %d vectors", alice.Bank.Len())
	}
	stored, _ := f.faces.GetFace(context.Background(), faceID)
	if stored.Confirmed {
		t.Error("face must not be confirmed after a failed bank update")
	}
}

func TestConfirmFace_Errors(t *testing.T) {
	f := newFixture(t, nil)
	faceID := persistOne(t, f, "a.jpg", 1, 0)
	other := f.persons.AddPerson(database.StoredPerson{Owner: "other", Name: "Eve", Bank: mustBank(t, []float32{1, 0})})

	tests := []struct {
		name   string
		faceID int64
		req    ConfirmRequest
		want   error
	}{
		{"unknown face", 999, ConfirmRequest{Name: "X"}, database.ErrNotFound},
		{"no identity", faceID, ConfirmRequest{Name: "   "}, ErrMissingIdentity},
		{"unknown person", faceID, ConfirmRequest{PersonID: "nope"}, database.ErrNotFound},
		{"person of another owner", faceID, ConfirmRequest{PersonID: other}, database.ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.ConfirmFace(context.Background(), tc.faceID, tc.req)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestConfirmFace_WithoutFaceStorage(t *testing.T) {
	svc := NewService(mock.NewMockPersonWriter(), nil, nil, testConfig())
	if _, err := svc.ConfirmFace(context.Background(), 1, ConfirmRequest{Name: "A"}); !errors.Is(err, ErrFacesUnavailable) {
		t.Errorf("expected ErrFacesUnavailable, got %v", err)
	}
	if err := svc.RejectFace(context.Background(), 1); !errors.Is(err, ErrFacesUnavailable) {
		t.Errorf("expected ErrFacesUnavailable, got %v", err)
	}
}

func TestRejectFace(t *testing.T) {
	f := newFixture(t, nil)
	faceID := persistOne(t, f, "a.jpg", 1, 0)

	if err := f.svc.RejectFace(context.Background(), faceID); err != nil {
		t.Fatalf("RejectFace: %v", err)
	}
	stored, _ := f.faces.GetFace(context.Background(), faceID)
	if stored.PersonID != "" || stored.Status != facematch.StatusUnknown || stored.Confirmed {
		t.Errorf("face still linked: %+v", stored)
	}
	alice, _ := f.persons.GetPerson(context.Background(), f.alice)
	if alice.Bank.Len() != 1 || f.persons.SwapCalls != 0 {
		t.Error("reject must not touch the bank")
	}

	if err := f.svc.RejectFace(context.Background(), 999); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

type fakeDetector struct {
	mu    sync.Mutex
	calls int
}

func (d *fakeDetector) Detect(_ context.Context, data []byte) (*detector.Detection, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	switch string(data) {
	case "alice":
		return &detector.Detection{Width: 100, Height: 100, Faces: []facematch.DetectedFace{face(0, 10, 1, 0)}}, nil
	case "empty":
		return &detector.Detection{Width: 100, Height: 100}, nil
	default:
		return nil, errors.New("failed to decode image")
	}
}

func TestResolveUploads(t *testing.T) {
	det := &fakeDetector{}
	f := newFixture(t, det)

	reports, err := f.svc.ResolveUploads(context.Background(), "default", []Upload{
		{Ref: "one.jpg", Data: []byte("alice")},
		{Ref: "broken.jpg", Data: []byte("garbage")},
		{Ref: "none.jpg", Data: []byte("empty")},
	}, ResolveOptions{Workers: 2})
	if err != nil {
		t.Fatalf("ResolveUploads: %v", err)
	}
	if det.calls != 3 {
		t.Errorf("expected 3 detector calls, got %d", det.calls)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}

	if reports[0].Ref != "one.jpg" || reports[0].Faces[0].Name != "Alice" {
		t.Errorf("first upload: %+v", reports[0])
	}
	if reports[1].Ref != "broken.jpg" || !strings.Contains(reports[1].Error, "face detection failed") {
		t.Errorf("second upload: %+v", reports[1])
	}
	if reports[2].Ref != "none.jpg" || reports[2].DetectedFaces != 0 || reports[2].Error != "" {
		t.Errorf("third upload: %+v", reports[2])
	}

	s := Summarize(reports)
	if s.Images != 3 || s.Failed != 1 || s.Faces != 1 || s.Matched != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestResolveUploads_NoDetector(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.ResolveUploads(context.Background(), "", []Upload{{Data: []byte("x")}}, ResolveOptions{}); !errors.Is(err, ErrDetectorUnavailable) {
		t.Errorf("expected ErrDetectorUnavailable, got %v", err)
	}
}

func TestUploadRef(t *testing.T) {
	if got := uploadRef(Upload{Ref: "a.jpg"}, 0); got != "a.jpg" {
		t.Errorf("expected a.jpg, got %s", got)
	}
	if got := uploadRef(Upload{Data: []byte("not an image")}, 2); got != "upload-3" {
		t.Errorf("expected upload-3, got %s", got)
	}
}

func TestPersons(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.CreatePerson(ctx, "", "Jiří Novák", []float32{0.6, 0.8})
	if err != nil {
		t.Fatalf("CreatePerson: %v", err)
	}
	if created.BankSize != 1 || created.Dim != 2 || created.Owner != "default" {
		t.Errorf("unexpected person %+v", created)
	}

	if _, err := f.svc.CreatePerson(ctx, "default", "jiri novak", nil); !errors.Is(err, database.ErrPersonExists) {
		t.Errorf("expected ErrPersonExists, got %v", err)
	}
	if _, err := f.svc.CreatePerson(ctx, "default", "  ", nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
	if _, err := f.svc.CreatePerson(ctx, "default", "Nan", []float32{float32(math.NaN())}); !errors.Is(err, facematch.ErrInvalidEmbedding) {
		t.Errorf("expected ErrInvalidEmbedding, got %v", err)
	}

	list, err := f.svc.ListPersons(ctx, "default")
	if err != nil {
		t.Fatalf("ListPersons: %v", err)
	}
	if len(list) != 3 || list[0].Name != "Alice" || list[2].Name != "Jiří Novák" {
		t.Errorf("unexpected list %+v", list)
	}

	if err := f.svc.DeletePerson(ctx, created.ID); err != nil {
		t.Fatalf("DeletePerson: %v", err)
	}
	if err := f.svc.DeletePerson(ctx, created.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListImageFaces(t *testing.T) {
	f := newFixture(t, nil)
	persistOne(t, f, "a.jpg", 1, 0)

	faces, err := f.svc.ListImageFaces(context.Background(), "", "a.jpg")
	if err != nil {
		t.Fatalf("ListImageFaces: %v", err)
	}
	if len(faces) != 1 || faces[0].PersonID != f.alice {
		t.Errorf("unexpected faces %+v", faces)
	}
}
