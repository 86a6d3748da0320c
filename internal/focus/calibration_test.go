package focus

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mindfocus/internal/face"
)

func TestComputeBaselineIsPure(t *testing.T) {
	user := uuid.New()
	s := CalibrationSamples{
		EAR:            []float64{0.28, 0.30, 0.32},
		MAR:            []float64{0.01, 0.02, 0.03},
		HeadPitchDeg:   []float64{-2, 0, 2},
		Blinks:         12,
		ElapsedSeconds: 60,
	}

	a, err := ComputeBaseline(user, s, t0)
	require.NoError(t, err)
	b, err := ComputeBaseline(user, s, t0)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, user, a.UserID)
	assert.InDelta(t, 0.30, a.EARMean, 1e-9)
	assert.InDelta(t, 0.02, a.MARMean, 1e-9)
	assert.InDelta(t, 0.0, a.HeadPitchMeanDeg, 1e-9)
	assert.InDelta(t, 12.0, a.BlinkPerMin, 1e-9)
	assert.Equal(t, 0.0, a.NoiseDBMean)
}

func TestComputeBaselineBlinkRate(t *testing.T) {
	s := CalibrationSamples{EAR: []float64{0.3}, MAR: []float64{0.01}, HeadPitchDeg: []float64{0}, Blinks: 12}

	s.ElapsedSeconds = 30
	b, err := ComputeBaseline(uuid.New(), s, t0)
	require.NoError(t, err)
	assert.InDelta(t, 24.0, b.BlinkPerMin, 1e-9)

	s.ElapsedSeconds = 0
	b, err = ComputeBaseline(uuid.New(), s, t0)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, b.BlinkPerMin, 1e-9)
}

func TestComputeBaselineInsufficientData(t *testing.T) {
	_, err := ComputeBaseline(uuid.New(), CalibrationSamples{ElapsedSeconds: 60}, t0)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCalibrationRun(t *testing.T) {
	c := NewCalibration(0)

	// Frames before start are displayed but not collected.
	st := c.ProcessFrame(&face.Metrics{EAR: 0.25, MAR: 0.01})
	assert.InDelta(t, 100.0, st.FocusScore, 1e-9)
	assert.Empty(t, c.Samples().EAR)

	c.Start()
	for _, ear := range []float64{0.3, 0.1, 0.12, 0.3, 0.1, 0.3} {
		c.ProcessFrame(&face.Metrics{EAR: ear, MAR: 0.01})
	}
	assert.Len(t, c.Samples().EAR, 6)
	assert.Equal(t, 2, c.Samples().Blinks)

	c.Pause()
	c.ProcessFrame(&face.Metrics{EAR: 0.3})
	assert.Len(t, c.Samples().EAR, 6)
	_, done := c.Tick()
	assert.False(t, done)
	assert.Equal(t, 0, c.State().ElapsedSeconds)

	c.Resume()
	for i := 1; i < 60; i++ {
		_, done = c.Tick()
		require.False(t, done)
	}
	st, done = c.Tick()
	assert.True(t, done)
	assert.True(t, st.Completed)
	assert.False(t, st.Running)
	assert.Equal(t, 60, c.Samples().ElapsedSeconds)

	b, err := c.Baseline(uuid.New(), t0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, b.BlinkPerMin, 1e-9)
	assert.InDelta(t, (0.3+0.1+0.12+0.3+0.1+0.3)/6, b.EARMean, 1e-9)
}

func TestCalibrationNoFaceDecaysDisplay(t *testing.T) {
	c := NewCalibration(CalibrationDuration)
	c.Start()
	c.ProcessFrame(&face.Metrics{EAR: 0.25, MAR: 0.01})

	var st CalibrationState
	for i := 0; i < 5; i++ {
		st = c.ProcessFrame(nil)
	}
	assert.False(t, st.FaceDetected)
	assert.InDelta(t, 90.0, st.FocusScore, 1e-9)
}

func TestCalibrationStopWithoutSamples(t *testing.T) {
	c := NewCalibration(CalibrationDuration)
	c.Start()
	c.Stop()
	_, err := c.Baseline(uuid.New(), t0)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
