package focus

import (
	"math"

	"github.com/your-org/mindfocus/internal/face"
	"github.com/your-org/mindfocus/internal/models"
)

// Reference values used when a user has no baseline yet.
const (
	DefaultEARRef  = 0.25
	DefaultMARRef  = 0.01
	DefaultHeadRef = 0.0
)

// Score weights. These are fixed policy, not configuration.
const (
	weightEAR  = 0.5
	weightMAR  = 0.2
	weightHead = 0.3

	maxMAR           = 0.5
	marToleranceFrac = 0.3
	headRangeDeg     = 45.0

	// noFaceDecay is subtracted from the score for every frame without a face.
	noFaceDecay = 2.0
)

// Reference is the point the scorer and the detectors normalise against.
type Reference struct {
	EAR     float64
	MAR     float64
	HeadDeg float64
}

// ReferenceFrom returns the baseline's values, or the defaults when b is
// nil. A non-positive stored EAR falls back to the default so it can never
// be used as a divisor.
func ReferenceFrom(b *models.Baseline) Reference {
	if b == nil {
		return Reference{EAR: DefaultEARRef, MAR: DefaultMARRef, HeadDeg: DefaultHeadRef}
	}
	ref := Reference{EAR: b.EARMean, MAR: b.MARMean, HeadDeg: b.HeadPitchMeanDeg}
	if !(ref.EAR > 0) || math.IsInf(ref.EAR, 0) {
		ref.EAR = DefaultEARRef
	}
	return ref
}

// Components are the normalised sub-scores, each in [0, 1].
type Components struct {
	EAR  float64
	MAR  float64
	Head float64
}

// Normalize maps smoothed measurements onto [0, 1] sub-scores relative to ref.
func Normalize(m face.Metrics, ref Reference) Components {
	return Components{
		EAR:  clamp(m.EAR/ref.EAR, 0, 1),
		MAR:  marNorm(m.MAR, ref.MAR),
		Head: clamp(1-math.Abs(m.HeadPitchDeg-ref.HeadDeg)/headRangeDeg, 0, 1),
	}
}

// Score returns the focus score in [0, 100] for smoothed measurements.
func Score(m face.Metrics, ref Reference) float64 {
	return combine(Normalize(m, ref))
}

// ColdStartScore is the score shown while calibrating: it uses the fixed
// default references and a plain linear mouth decay, since no baseline
// exists yet.
func ColdStartScore(m face.Metrics) float64 {
	var mar float64
	if m.MAR <= DefaultMARRef {
		mar = 1
	} else {
		mar = clamp((maxMAR-m.MAR)/(maxMAR-DefaultMARRef), 0, 1)
	}
	return combine(Components{
		EAR:  clamp(m.EAR/DefaultEARRef, 0, 1),
		MAR:  mar,
		Head: clamp(1-math.Abs(m.HeadPitchDeg)/headRangeDeg, 0, 1),
	})
}

// Decay lowers a score by one no-face step, floored at zero.
func Decay(score float64) float64 {
	return math.Max(0, score-noFaceDecay)
}

func combine(c Components) float64 {
	s := clamp(weightEAR*c.EAR+weightMAR*c.MAR+weightHead*c.Head, 0, 1) * 100
	if math.IsNaN(s) {
		return 0
	}
	return s
}

// marNorm gives full credit at or below the reference. Past it the credit
// falls linearly to 0.5 across a tolerance band covering 30% of the way to a
// fully open mouth. Beyond the band it is capped at 0.5 and reaches 0 at
// maxMAR.
func marNorm(mar, ref float64) float64 {
	if mar <= ref {
		return 1
	}
	band := ref + (maxMAR-ref)*marToleranceFrac
	if mar <= band {
		if band <= ref {
			return 1
		}
		return 1 - ((mar-ref)/(band-ref))*0.5
	}
	if maxMAR <= band {
		return 0
	}
	return clamp((maxMAR-mar)/(maxMAR-band), 0, 0.5)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
