// Package face turns one frame of face-mesh landmarks into the scalar
// measurements the focus engine works with.
package face

import "math"

// MinLandmarks is the smallest mesh the extractor accepts. The landmark
// model produces 468 points (478 with irises).
const MinLandmarks = 468

// Point is one landmark in normalized image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Metrics is the per-frame measurement derived from a landmark mesh.
type Metrics struct {
	EAR          float64 `json:"ear"`
	MAR          float64 `json:"mar"`
	HeadPitchDeg float64 `json:"head_pitch_deg"`
}

// Mesh indices used by the extractor.
var (
	leftEye  = [6]int{33, 160, 158, 133, 153, 144}
	rightEye = [6]int{362, 385, 387, 263, 373, 380}
	// upper lip, lower lip, left corner, right corner
	mouth = [4]int{13, 14, 78, 308}
)

const (
	noseTip = 1
	chin    = 152

	maxMAR = 0.5
)

// distance is the 2D distance between two landmarks; depth is ignored.
func distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
