package detector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type capturedRequest struct {
	path        string
	contentType string
	size        int
}

func newFaceServer(t *testing.T, status int, resp any, captured *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart form: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
		} else {
			defer file.Close()
			if captured != nil {
				captured.path = r.URL.Path
				captured.contentType = header.Header.Get("Content-Type")
				captured.size = int(header.Size)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if s, ok := resp.(string); ok {
			_, _ = w.Write([]byte(s))
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestDetect_ParsesFaces(t *testing.T) {
	var captured capturedRequest
	server := newFaceServer(t, http.StatusOK, faceResponse{
		FacesCount: 3,
		Model:      "buffalo_l",
		Faces: []faceDetection{
			{FaceIndex: 0, Dim: 2, Embedding: []float32{1, 0}, BBox: []float64{10, 10, 40, 40}, DetScore: 0.9},
			{FaceIndex: 1, Dim: 2, Embedding: []float32{0, 1}, BBox: []float64{50, 10, 80, 40}, DetScore: 0.3},
			{FaceIndex: 2, Dim: 2, Embedding: []float32{0, 1}, BBox: []float64{1, 2}, DetScore: 0.99},
		},
	}, &captured)
	defer server.Close()

	client := NewClient(server.URL+"/", 0.5)
	det, err := client.Detect(context.Background(), encodePNG(createTestImage(100, 80)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if captured.path != "/embed/face" {
		t.Errorf("expected path /embed/face, got %s", captured.path)
	}
	if captured.contentType != "image/png" {
		t.Errorf("expected image/png part, got %s", captured.contentType)
	}
	if det.Width != 100 || det.Height != 80 {
		t.Errorf("expected 100x80, got %dx%d", det.Width, det.Height)
	}
	if det.Model != "buffalo_l" {
		t.Errorf("expected model buffalo_l, got %s", det.Model)
	}
	if len(det.Faces) != 3 {
		t.Fatalf("expected 3 faces, got %d", len(det.Faces))
	}

	wantAccepted := []bool{true, false, false}
	for i, f := range det.Faces {
		if f.Accepted != wantAccepted[i] {
			t.Errorf("face %d accepted = %v, want %v", i, f.Accepted, wantAccepted[i])
		}
	}
	if det.Faces[0].Box[2] != 40 {
		t.Errorf("box should be unscaled, got %v", det.Faces[0].Box)
	}

	input := det.Input("photo.png")
	if input.Ref != "photo.png" || len(input.Faces) != 3 || input.Width != 100 {
		t.Errorf("unexpected input: %+v", input)
	}
}

func TestDetect_ScalesBoxesOfResizedImages(t *testing.T) {
	var captured capturedRequest
	server := newFaceServer(t, http.StatusOK, faceResponse{
		FacesCount: 1,
		Faces: []faceDetection{
			{FaceIndex: 0, Embedding: []float32{1, 0}, BBox: []float64{10, 10, 20, 30}, DetScore: 0.9},
		},
	}, &captured)
	defer server.Close()

	client := NewClient(server.URL, 0.5)
	det, err := client.Detect(context.Background(), encodePNG(createTestImage(3840, 100)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if captured.contentType != "image/jpeg" {
		t.Errorf("resized image should be sent as JPEG, got %s", captured.contentType)
	}
	if det.Width != 3840 {
		t.Errorf("expected original width 3840, got %d", det.Width)
	}
	want := []float64{20, 20, 40, 60}
	for i, v := range want {
		if det.Faces[0].Box[i] != v {
			t.Fatalf("expected box %v, got %v", want, det.Faces[0].Box)
		}
	}
}

func TestDetect_NoFaces(t *testing.T) {
	server := newFaceServer(t, http.StatusOK, `{"faces_count": 0, "faces": [], "model": "buffalo_l"}`, nil)
	defer server.Close()

	det, err := NewClient(server.URL, 0.5).Detect(context.Background(), encodePNG(createTestImage(10, 10)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(det.Faces) != 0 {
		t.Errorf("expected no faces, got %d", len(det.Faces))
	}
}

func TestDetect_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		server := newFaceServer(t, http.StatusInternalServerError, `{"detail": "model not loaded"}`, nil)
		defer server.Close()

		_, err := NewClient(server.URL, 0.5).Detect(context.Background(), encodePNG(createTestImage(10, 10)))
		if err == nil || !strings.Contains(err.Error(), "status 500") {
			t.Errorf("expected status 500 error, got %v", err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		server := newFaceServer(t, http.StatusOK, `{not json`, nil)
		defer server.Close()

		_, err := NewClient(server.URL, 0.5).Detect(context.Background(), encodePNG(createTestImage(10, 10)))
		if err == nil || !strings.Contains(err.Error(), "failed to parse response") {
			t.Errorf("expected parse error, got %v", err)
		}
	})

	t.Run("empty image", func(t *testing.T) {
		_, err := NewClient("http://127.0.0.1:1", 0.5).Detect(context.Background(), nil)
		if !errors.Is(err, ErrEmptyImage) {
			t.Errorf("expected ErrEmptyImage, got %v", err)
		}
	})

	t.Run("not an image", func(t *testing.T) {
		_, err := NewClient("http://127.0.0.1:1", 0.5).Detect(context.Background(), []byte("not an image"))
		if err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"bmp", []byte{0x42, 0x4D, 0, 0, 0, 0, 0, 0}, "image/bmp"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBP"), "image/webp"},
		{"short", []byte{0xFF, 0xD8}, "application/octet-stream"},
		{"unknown", []byte("plain text data"), "application/octet-stream"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectMIMEType(tc.data); got != tc.expected {
				t.Errorf("detectMIMEType() = %s; want %s", got, tc.expected)
			}
		})
	}
}
