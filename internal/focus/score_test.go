package focus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/mindfocus/internal/face"
	"github.com/your-org/mindfocus/internal/models"
)

func TestScoreAtBaseline(t *testing.T) {
	ref := ReferenceFrom(&models.Baseline{EARMean: 0.30, MARMean: 0.02, HeadPitchMeanDeg: 0})
	m := face.Metrics{EAR: 0.30, MAR: 0.02, HeadPitchDeg: 0}

	c := Normalize(m, ref)
	assert.InDelta(t, 1.0, c.EAR, 1e-9)
	assert.InDelta(t, 1.0, c.MAR, 1e-9)
	assert.InDelta(t, 1.0, c.Head, 1e-9)
	assert.InDelta(t, 100.0, Score(m, ref), 1e-9)
}

func TestScoreHeadFullyTurned(t *testing.T) {
	ref := ReferenceFrom(&models.Baseline{EARMean: 0.30, MARMean: 0.02, HeadPitchMeanDeg: 0})
	m := face.Metrics{EAR: 0.30, MAR: 0.02, HeadPitchDeg: 45}

	assert.InDelta(t, 0.0, Normalize(m, ref).Head, 1e-9)
	assert.InDelta(t, 70.0, Score(m, ref), 1e-9)
}

func TestScoreAlwaysInRange(t *testing.T) {
	values := []float64{-10, -1, 0, 0.01, 0.1, 0.25, 0.5, 1, 90, math.NaN(), math.Inf(1), math.Inf(-1)}
	refs := []Reference{
		ReferenceFrom(nil),
		ReferenceFrom(&models.Baseline{EARMean: 0.3, MARMean: 0.02, HeadPitchMeanDeg: 5}),
		ReferenceFrom(&models.Baseline{EARMean: 0, MARMean: 0.5, HeadPitchMeanDeg: -30}),
		ReferenceFrom(&models.Baseline{EARMean: 0.2, MARMean: 0.7}),
	}
	for _, ref := range refs {
		for _, ear := range values {
			for _, mar := range values {
				for _, head := range values {
					s := Score(face.Metrics{EAR: ear, MAR: mar, HeadPitchDeg: head}, ref)
					if s < 0 || s > 100 || math.IsNaN(s) {
						t.Fatalf("score %v out of range for ear=%v mar=%v head=%v ref=%+v", s, ear, mar, head, ref)
					}
				}
			}
		}
	}
}

func TestReferenceFrom(t *testing.T) {
	assert.Equal(t, Reference{EAR: 0.25, MAR: 0.01, HeadDeg: 0}, ReferenceFrom(nil))

	ref := ReferenceFrom(&models.Baseline{EARMean: 0, MARMean: 0.03, HeadPitchMeanDeg: 4})
	assert.Equal(t, 0.25, ref.EAR)
	assert.Equal(t, 0.03, ref.MAR)
	assert.Equal(t, 4.0, ref.HeadDeg)

	assert.Equal(t, 0.25, ReferenceFrom(&models.Baseline{EARMean: -0.1}).EAR)
	assert.Equal(t, 0.25, ReferenceFrom(&models.Baseline{EARMean: math.NaN()}).EAR)
}

func TestMARNormPiecewise(t *testing.T) {
	ref := 0.01
	band := ref + (0.5-ref)*0.3

	assert.Equal(t, 1.0, marNorm(0, ref))
	assert.Equal(t, 1.0, marNorm(ref, ref))
	assert.InDelta(t, 0.75, marNorm((ref+band)/2, ref), 1e-9)
	assert.InDelta(t, 0.5, marNorm(band, ref), 1e-9)
	// Beyond the band the credit is capped at 0.5 before falling to 0.
	assert.InDelta(t, 0.5, marNorm((band+0.5)/2, ref), 1e-9)
	assert.InDelta(t, 0.25, marNorm(band+(0.5-band)*0.75, ref), 1e-9)
	assert.InDelta(t, 0.0, marNorm(0.5, ref), 1e-9)
	assert.InDelta(t, 0.0, marNorm(0.9, ref), 1e-9)
}

func TestColdStartScore(t *testing.T) {
	assert.InDelta(t, 100.0, ColdStartScore(face.Metrics{EAR: 0.25, MAR: 0.01}), 1e-9)
	assert.InDelta(t, 80.0, ColdStartScore(face.Metrics{EAR: 0.25, MAR: 0.5}), 1e-9)
	assert.InDelta(t, 70.0, ColdStartScore(face.Metrics{EAR: 0.25, MAR: 0.01, HeadPitchDeg: -45}), 1e-9)
}

func TestDecay(t *testing.T) {
	for _, tc := range []struct {
		start float64
		n     int
		want  float64
	}{
		{start: 100, n: 0, want: 100},
		{start: 100, n: 10, want: 80},
		{start: 10, n: 3, want: 4},
		{start: 10, n: 5, want: 0},
		{start: 7, n: 50, want: 0},
	} {
		s := tc.start
		for i := 0; i < tc.n; i++ {
			s = Decay(s)
		}
		assert.InDelta(t, math.Max(0, tc.start-2*float64(tc.n)), s, 1e-9)
		assert.InDelta(t, tc.want, s, 1e-9)
	}
}
