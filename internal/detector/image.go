package detector

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/kozaktomas/face-identity/internal/constants"
)

const jpegQuality = 90

// PreparedImage is the payload sent to the detector. Scale maps detector
// pixel coordinates back to the original image.
type PreparedImage struct {
	Data   []byte
	Width  int // original width
	Height int // original height
	Scale  float64
}

// PrepareImage decodes the image and re-encodes it as JPEG when its longer
// side exceeds constants.MaxImageSize. Smaller images are sent unchanged.
func PrepareImage(data []byte) (*PreparedImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	prepared := &PreparedImage{Data: data, Width: width, Height: height, Scale: 1}

	longest := max(width, height)
	if longest <= constants.MaxImageSize {
		return prepared, nil
	}

	ratio := float64(constants.MaxImageSize) / float64(longest)
	newWidth := max(1, int(float64(width)*ratio))
	newHeight := max(1, int(float64(height)*ratio))

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	prepared.Data = buf.Bytes()
	prepared.Scale = float64(width) / float64(newWidth)
	return prepared, nil
}

// ContentRef returns a stable reference for an image without a name: the
// 64-bit difference hash of its pixels, hex encoded.
func ContentRef(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	return fmt.Sprintf("dhash:%016x", differenceHash(img)), nil
}

// differenceHash shrinks the image to 9x8 grayscale and sets one bit per
// pixel that is brighter than its right neighbour.
func differenceHash(img image.Image) uint64 {
	small := image.NewRGBA(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Over, nil)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if luma(small, x, y) > luma(small, x+1, y) {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// luma uses the ITU-R BT.601 weights.
func luma(img *image.RGBA, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}
