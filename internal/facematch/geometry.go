package facematch

import (
	"math"
	"sort"
)

// centerTolerancePx is how close two horizontal centers must be before the
// vertical center decides the order.
const centerTolerancePx = 2.0

// BoxCenter returns the center of a [x1, y1, x2, y2] box.
// ok is false for a malformed box.
func BoxCenter(bbox []float64) (x, y float64, ok bool) {
	if len(bbox) != 4 {
		return 0, 0, false
	}
	return (bbox[0] + bbox[2]) / 2, (bbox[1] + bbox[3]) / 2, true
}

// SortFaces orders faces by horizontal box center in the requested
// direction. Centers within 2px fall back to the vertical center (top
// first) and then to the detector index, so the same input always yields
// the same numbering. Faces with malformed boxes go last.
func SortFaces(faces []DetectedFace, order Order) {
	sort.SliceStable(faces, func(i, j int) bool {
		xi, yi, oki := BoxCenter(faces[i].Box)
		xj, yj, okj := BoxCenter(faces[j].Box)
		if oki != okj {
			return oki
		}
		if oki && math.Abs(xi-xj) > centerTolerancePx {
			if order == OrderRightToLeft {
				return xi > xj
			}
			return xi < xj
		}
		if oki && yi != yj {
			return yi < yj
		}
		return faces[i].Index < faces[j].Index
	})
}

// ScaleBBox multiplies every coordinate of a [x1, y1, x2, y2] box by factor.
func ScaleBBox(bbox []float64, factor float64) []float64 {
	if len(bbox) != 4 || factor <= 0 {
		return bbox
	}
	return []float64{
		bbox[0] * factor,
		bbox[1] * factor,
		bbox[2] * factor,
		bbox[3] * factor,
	}
}

// ConvertPixelBBoxToRelative converts pixel bbox to relative (0-1) coordinates.
// Input bbox is [x1, y1, x2, y2] in pixels, output is [x1, y1, x2, y2] in relative coords.
func ConvertPixelBBoxToRelative(bbox []float64, width, height int) []float64 {
	if len(bbox) != 4 || width <= 0 || height <= 0 {
		return bbox
	}
	return []float64{
		bbox[0] / float64(width),
		bbox[1] / float64(height),
		bbox[2] / float64(width),
		bbox[3] / float64(height),
	}
}
