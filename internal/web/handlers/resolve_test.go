package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-identity/internal/constants"
	"github.com/kozaktomas/face-identity/internal/database"
	"github.com/kozaktomas/face-identity/internal/facematch"
)

func postResolve(t *testing.T, handler *ResolveHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/resolve", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.Resolve(recorder, req)
	return recorder
}

func TestResolveHandler_Resolve(t *testing.T) {
	env := newTestEnv(t)
	handler := NewResolveHandler(env.service)

	recorder := postResolve(t, handler, `{
		"order": "rtl",
		"images": [{
			"ref": "family.jpg",
			"width": 400,
			"height": 200,
			"faces": [
				{"bbox": [10, 10, 60, 60], "embedding": [1, 0]},
				{"bbox": [300, 10, 350, 60], "embedding": [0, 1], "det_score": 0.9},
				{"bbox": [150, 10, 200, 60], "embedding": [0.7, 0.7]}
			]
		}]
	}`)

	assertStatusCode(t, recorder, http.StatusOK)

	var result ResolveResponse
	parseJSONResponse(t, recorder, &result)

	if len(result.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(result.Results))
	}
	faces := result.Results[0].Faces
	if len(faces) != 3 {
		t.Fatalf("expected 3 faces, got %d", len(faces))
	}

	// right to left: Bob, the ambiguous face, Alice
	if faces[0].Name != "Bob" || faces[0].FaceIndex != 1 || faces[0].FaceNumber != 1 {
		t.Errorf("first face should be Bob, got %+v", faces[0])
	}
	if faces[1].Status != facematch.StatusUnknown || faces[1].IdentityID != nil {
		t.Errorf("middle face should be unknown, got %+v", faces[1])
	}
	if faces[2].Name != "Alice" || faces[2].IdentityID == nil || *faces[2].IdentityID != env.alice {
		t.Errorf("last face should be Alice, got %+v", faces[2])
	}
	if result.Summary.Matched != 2 || result.Summary.Unknown != 1 {
		t.Errorf("unexpected summary %+v", result.Summary)
	}
}

func TestResolveHandler_ResolveFieldNames(t *testing.T) {
	env := newTestEnv(t)
	env.persons.AddPerson(database.StoredPerson{Owner: "default", Name: "Alicia", Bank: mustBank(t, []float32{0.999, 0.0447})})
	handler := NewResolveHandler(env.service)

	recorder := postResolve(t, handler,
		`{"images": [{"ref": "a.jpg", "faces": [{"bbox": [0, 0, 10, 10], "embedding": [1, 0]}]}]}`)

	assertStatusCode(t, recorder, http.StatusOK)

	var result struct {
		Results []struct {
			Faces []map[string]any `json:"faces"`
		} `json:"results"`
	}
	parseJSONResponse(t, recorder, &result)
	if len(result.Results) != 1 || len(result.Results[0].Faces) != 1 {
		t.Fatalf("expected one face, got %s", recorder.Body.String())
	}
	face := result.Results[0].Faces[0]

	if face["status"] != string(facematch.StatusAmbiguous) {
		t.Fatalf("expected ambiguous face, got %v", face["status"])
	}
	for _, key := range []string{"identityId", "name", "status", "similarity", "secondBestSimilarity", "similarityGap", "topCandidates", "peopleCompared"} {
		if _, ok := face[key]; !ok {
			t.Errorf("missing key %q in %v", key, face)
		}
	}
	for _, key := range []string{"identity_id", "second_best_similarity", "similarity_gap", "top_candidates", "people_compared"} {
		if _, ok := face[key]; ok {
			t.Errorf("unexpected key %q in %v", key, face)
		}
	}
	if face["identityId"] != nil {
		t.Errorf("ambiguous face should have a null identityId, got %v", face["identityId"])
	}

	candidates, ok := face["topCandidates"].([]any)
	if !ok || len(candidates) != 3 {
		t.Fatalf("expected 3 top candidates, got %v", face["topCandidates"])
	}
	first, _ := candidates[0].(map[string]any)
	if first["name"] != "Alice" {
		t.Errorf("expected Alice first, got %v", first)
	}
	if _, ok := first["similarity"]; !ok {
		t.Errorf("candidate should carry similarity, got %v", first)
	}
}

func TestResolveHandler_ResolveExplicitlyRejectedFace(t *testing.T) {
	env := newTestEnv(t)
	handler := NewResolveHandler(env.service)

	recorder := postResolve(t, handler, `{"images": [{"ref": "a.jpg", "faces": [
		{"face_index": 4, "bbox": [0, 0, 10, 10], "embedding": [1, 0], "accepted": false},
		{"face_index": 5, "bbox": [20, 0, 30, 10], "embedding": [1, 0], "det_score": 0.1}
	]}]}`)

	assertStatusCode(t, recorder, http.StatusOK)

	var result ResolveResponse
	parseJSONResponse(t, recorder, &result)
	r := result.Results[0]
	if r.DetectedFaces != 2 || r.ValidFaces != 0 || len(r.Faces) != 0 {
		t.Errorf("both faces should be excluded, got %+v", r)
	}
}

func TestResolveHandler_ResolvePersist(t *testing.T) {
	env := newTestEnv(t)
	handler := NewResolveHandler(env.service)

	recorder := postResolve(t, handler,
		`{"persist": true, "images": [{"ref": "a.jpg", "faces": [{"bbox": [0, 0, 10, 10], "embedding": [1, 0]}]}]}`)

	assertStatusCode(t, recorder, http.StatusOK)

	var result ResolveResponse
	parseJSONResponse(t, recorder, &result)
	if result.Results[0].Faces[0].FaceID == 0 {
		t.Error("persisted face should have an ID")
	}
	if env.faces.SaveCalls != 1 {
		t.Errorf("expected 1 save call, got %d", env.faces.SaveCalls)
	}
}

func TestResolveHandler_ResolveBadRequests(t *testing.T) {
	env := newTestEnv(t)
	handler := NewResolveHandler(env.service)

	var many bytes.Buffer
	many.WriteString(`{"images": [`)
	for i := range constants.MaxImagesPerRequest + 1 {
		if i > 0 {
			many.WriteString(",")
		}
		fmt.Fprintf(&many, `{"ref": "img-%d"}`, i)
	}
	many.WriteString(`]}`)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"invalid json", `{not json`, errInvalidRequestBody},
		{"no images", `{"images": []}`, "images are required"},
		{"too many images", many.String(), fmt.Sprintf("too many images: %d (max %d)",
			constants.MaxImagesPerRequest+1, constants.MaxImagesPerRequest)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := postResolve(t, handler, tc.body)
			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tc.message)
		})
	}
}
