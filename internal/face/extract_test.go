package face

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// levelMesh builds a mesh where both eyes have EAR 0.3, the mouth has MAR
// 0.1 and the chin sits straight below the nose.
func levelMesh() []Point {
	pts := make([]Point, MinLandmarks)
	setEye := func(idx [6]int, cx float64) {
		// corners 0.1 apart, lids 0.015 above and below the corner line
		pts[idx[0]] = Point{X: cx - 0.05, Y: 0.4}
		pts[idx[3]] = Point{X: cx + 0.05, Y: 0.4}
		pts[idx[1]] = Point{X: cx - 0.02, Y: 0.385}
		pts[idx[5]] = Point{X: cx - 0.02, Y: 0.415}
		pts[idx[2]] = Point{X: cx + 0.02, Y: 0.385}
		pts[idx[4]] = Point{X: cx + 0.02, Y: 0.415}
	}
	setEye(leftEye, 0.35)
	setEye(rightEye, 0.65)

	pts[mouth[0]] = Point{X: 0.5, Y: 0.70}
	pts[mouth[1]] = Point{X: 0.5, Y: 0.71}
	pts[mouth[2]] = Point{X: 0.45, Y: 0.705}
	pts[mouth[3]] = Point{X: 0.55, Y: 0.705}

	pts[noseTip] = Point{X: 0.5, Y: 0.55}
	pts[chin] = Point{X: 0.5, Y: 0.85}
	return pts
}

func TestExtractLevelFace(t *testing.T) {
	m, ok := Extract(levelMesh())
	require.True(t, ok)

	assert.InDelta(t, 0.3, m.EAR, 1e-9)
	assert.InDelta(t, 0.1, m.MAR, 1e-9)
	assert.InDelta(t, 0.0, m.HeadPitchDeg, 1e-9)
}

func TestExtractNoFace(t *testing.T) {
	m, ok := Extract(nil)
	assert.False(t, ok)
	assert.Equal(t, Metrics{}, m)

	_, ok = Extract(make([]Point, MinLandmarks-1))
	assert.False(t, ok)
}

func TestExtractClampsMouth(t *testing.T) {
	pts := levelMesh()
	pts[mouth[1]] = Point{X: 0.5, Y: 0.9}
	m, ok := Extract(pts)
	require.True(t, ok)
	assert.Equal(t, 0.5, m.MAR)

	pts[mouth[3]] = pts[mouth[2]]
	m, ok = Extract(pts)
	require.True(t, ok)
	assert.Equal(t, 0.0, m.MAR)
}

func TestExtractTiltedHead(t *testing.T) {
	pts := levelMesh()
	// chin moved so the nose-chin vector is 45 degrees off vertical
	pts[chin] = Point{X: 0.8, Y: 0.85}
	m, ok := Extract(pts)
	require.True(t, ok)
	assert.InDelta(t, -45.0, m.HeadPitchDeg, 1e-9)
}

func TestExtractSanitisesNaN(t *testing.T) {
	pts := levelMesh()
	pts[leftEye[1]] = Point{X: math.NaN(), Y: math.NaN()}
	pts[noseTip] = Point{X: math.NaN(), Y: 0.55}
	m, ok := Extract(pts)
	require.True(t, ok)
	assert.Equal(t, 0.0, m.EAR)
	assert.Equal(t, 0.0, m.HeadPitchDeg)
	assert.InDelta(t, 0.1, m.MAR, 1e-9)
}

func TestExtractDegenerateEye(t *testing.T) {
	pts := levelMesh()
	pts[leftEye[3]] = pts[leftEye[0]]
	m, ok := Extract(pts)
	require.True(t, ok)
	// left eye contributes 0, right eye 0.3
	assert.InDelta(t, 0.15, m.EAR, 1e-9)
}
