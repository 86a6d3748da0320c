package face

import "math"

// Extract computes EAR, MAR and head pitch for one frame.
//
// The boolean is false when the frame carries no usable face (nil or a mesh
// shorter than MinLandmarks). Callers must treat that as "no face" and not
// as a reading of zero; the returned Metrics are zero in that case.
func Extract(points []Point) (Metrics, bool) {
	if len(points) < MinLandmarks {
		return Metrics{}, false
	}

	m := Metrics{
		EAR:          (eyeAspectRatio(points, leftEye) + eyeAspectRatio(points, rightEye)) / 2,
		MAR:          mouthAspectRatio(points),
		HeadPitchDeg: headPitch(points),
	}

	// Landmark models occasionally emit NaN coordinates on partial occlusion.
	if !finite(m.EAR) || m.EAR < 0 {
		m.EAR = 0
	}
	if !finite(m.MAR) {
		m.MAR = 0
	}
	if !finite(m.HeadPitchDeg) {
		m.HeadPitchDeg = 0
	}
	return m, true
}

// eyeAspectRatio averages the two vertical lid distances over twice the
// corner-to-corner width.
func eyeAspectRatio(points []Point, idx [6]int) float64 {
	horizontal := distance(points[idx[0]], points[idx[3]])
	if horizontal == 0 {
		return 0
	}
	vertical := distance(points[idx[1]], points[idx[5]]) + distance(points[idx[2]], points[idx[4]])
	return vertical / (2 * horizontal)
}

func mouthAspectRatio(points []Point) float64 {
	vertical := distance(points[mouth[0]], points[mouth[1]])
	horizontal := distance(points[mouth[2]], points[mouth[3]])
	if horizontal <= 0 {
		return 0
	}
	return math.Max(0, math.Min(maxMAR, vertical/horizontal))
}

// headPitch is the angle of the nose-to-chin vector, shifted so that a
// level head reads close to zero.
func headPitch(points []Point) float64 {
	nose := points[noseTip]
	c := points[chin]
	angle := math.Atan2(c.Y-nose.Y, c.X-nose.X) * 180 / math.Pi
	return angle - 90
}
