// Package detector talks to the face embedding server that finds faces in an
// image and computes one embedding per face.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-identity/internal/facematch"
)

const (
	defaultURL     = "http://localhost:8000"
	faceEndpoint   = "/embed/face"
	requestTimeout = 2 * time.Minute
)

// ErrEmptyImage is returned when Detect is called without image data.
var ErrEmptyImage = errors.New("empty image")

// Client calls the face embedding endpoint.
type Client struct {
	baseURL  string
	minScore float64
	client   *http.Client
}

// NewClient creates a new detector client. Faces scoring below minScore are
// reported but not accepted.
func NewClient(baseURL string, minScore float64) *Client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		minScore: minScore,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// faceDetection is a single face in the server response.
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse is the body returned by the face endpoint.
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Detection is the detector output for one image, with boxes in the pixel
// space of the original image.
type Detection struct {
	Width  int
	Height int
	Model  string
	Faces  []facematch.DetectedFace
}

// Input converts the detection into resolver input for the image ref.
func (d *Detection) Input(ref string) facematch.ImageInput {
	return facematch.ImageInput{Ref: ref, Width: d.Width, Height: d.Height, Faces: d.Faces}
}

// Detect downsizes the image if needed, sends it to the embedding server and
// returns the detected faces.
func (c *Client) Detect(ctx context.Context, imageData []byte) (*Detection, error) {
	if len(imageData) == 0 {
		return nil, ErrEmptyImage
	}

	prepared, err := PrepareImage(imageData)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, faceEndpoint, prepared.Data)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	detection := &Detection{
		Width:  prepared.Width,
		Height: prepared.Height,
		Model:  resp.Model,
		Faces:  make([]facematch.DetectedFace, 0, len(resp.Faces)),
	}
	for _, f := range resp.Faces {
		detection.Faces = append(detection.Faces, facematch.DetectedFace{
			Index:     f.FaceIndex,
			Box:       facematch.ScaleBBox(f.BBox, prepared.Scale),
			Embedding: f.Embedding,
			DetScore:  f.DetScore,
			Accepted:  c.accepts(f),
		})
	}
	return detection, nil
}

func (c *Client) accepts(f faceDetection) bool {
	if len(f.BBox) != 4 || len(f.Embedding) == 0 {
		return false
	}
	if f.Dim > 0 && f.Dim != len(f.Embedding) {
		return false
	}
	return f.DetScore >= c.minScore
}

// postMultipartImage posts the image as the "file" form field with a content
// type detected from its magic bytes.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	// WebP: RIFF ... WEBP
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}
	return "application/octet-stream"
}
