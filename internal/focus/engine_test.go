package focus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"
	"github.com/your-org/mindfocus/internal/face"
	"github.com/your-org/mindfocus/internal/models"
)

func allOn() models.Settings {
	s := models.DefaultSettings(uuid.New())
	s.CameraMonitoringEnabled = true
	return s
}

var calibrated = &models.Baseline{EARMean: 0.30, MARMean: 0.02, HeadPitchMeanDeg: 0}

func reading(ear, mar, head float64) *face.Metrics {
	return &face.Metrics{EAR: ear, MAR: mar, HeadPitchDeg: head}
}

func raisedTypes(r Result) []AlertType {
	var out []AlertType
	for _, a := range r.Raised {
		out = append(out, a.Type)
	}
	return out
}

func TestEngineScoresAgainstBaseline(t *testing.T) {
	e := NewSessionEngine(calibrated, allOn(), t0)

	r := e.ProcessFrame(reading(0.30, 0.02, 0), at(0))
	assert.InDelta(t, 100.0, r.State.FocusScore, 1e-9)
	assert.True(t, r.State.FaceDetected)
	assert.True(t, r.State.Running)

	e = NewSessionEngine(calibrated, allOn(), t0)
	r = e.ProcessFrame(reading(0.30, 0.02, 45), at(0))
	assert.InDelta(t, 70.0, r.State.FocusScore, 1e-9)
}

func TestEngineEyesClosedDebounce(t *testing.T) {
	e := NewSessionEngine(nil, allOn(), t0)

	e.ProcessFrame(reading(0, 0.01, 0), at(0))
	r := e.ProcessFrame(reading(0, 0.01, 0), at(2999*time.Millisecond))
	assert.NotContains(t, raisedTypes(r), AlertEyesClosed)

	r = e.ProcessFrame(reading(0, 0.01, 0), at(3001*time.Millisecond))
	assert.Contains(t, raisedTypes(r), AlertEyesClosed)
	assert.True(t, r.Vibrate)

	// Re-triggering an active alert neither duplicates nor vibrates.
	r = e.ProcessFrame(reading(0, 0.01, 0), at(3500*time.Millisecond))
	assert.Empty(t, r.Raised)
	assert.False(t, r.Vibrate)
	assert.Len(t, e.Alerts(), 1)
}

func TestEngineNoFaceDecay(t *testing.T) {
	e := NewSessionEngine(calibrated, allOn(), t0)
	r := e.ProcessFrame(reading(0.30, 0.02, 0), at(0))
	require.InDelta(t, 100.0, r.State.FocusScore, 1e-9)

	for i := 1; i <= 20; i++ {
		r = e.ProcessFrame(nil, at(time.Duration(i)*100*time.Millisecond))
	}
	assert.InDelta(t, 60.0, r.State.FocusScore, 1e-9)
	assert.False(t, r.State.FaceDetected)
	// Stale smoothed values are kept while the face is missing.
	assert.InDelta(t, 0.30, r.State.Smoothed.EAR, 1e-9)

	for i := 21; i <= 100; i++ {
		r = e.ProcessFrame(nil, at(time.Duration(i)*100*time.Millisecond))
	}
	assert.Equal(t, 0.0, r.State.FocusScore)
}

func TestEngineFaceLostAutoPause(t *testing.T) {
	e := NewSessionEngine(calibrated, allOn(), t0)
	e.ProcessFrame(reading(0.30, 0.02, 0), at(0))

	r := e.ProcessFrame(nil, at(100*time.Millisecond))
	assert.Empty(t, r.Raised)
	r = e.ProcessFrame(nil, at(2099*time.Millisecond))
	assert.Empty(t, r.Raised)
	assert.False(t, r.State.Paused)

	r = e.ProcessFrame(nil, at(2100*time.Millisecond))
	assert.Equal(t, []AlertType{AlertFaceLost}, raisedTypes(r))
	assert.True(t, r.State.Paused)
	assert.True(t, r.State.AutoPaused)
	assert.True(t, r.Vibrate)

	// Timer does not advance while auto-paused.
	assert.Equal(t, 0, e.Tick().ElapsedSeconds)

	// Face-lost is never swept.
	r = e.Sweep(at(time.Minute))
	assert.Empty(t, r.Cleared)

	r = e.ProcessFrame(reading(0.30, 0.02, 0), at(2200*time.Millisecond))
	assert.Equal(t, []AlertType{AlertFaceLost}, r.Cleared)
	assert.False(t, r.State.Paused)
	assert.False(t, r.State.AutoPaused)
	assert.Equal(t, 1, e.Tick().ElapsedSeconds)
}

func TestEngineFrameEndingAutoPauseOnlyInBucket(t *testing.T) {
	e := NewSessionEngine(calibrated, allOn(), t0)
	e.ProcessFrame(reading(0.30, 0.02, 0), at(0))
	e.ProcessFrame(nil, at(100*time.Millisecond))
	r := e.ProcessFrame(nil, at(2100*time.Millisecond))
	require.True(t, r.State.AutoPaused)

	// Smoothed EAR 0.225 scores 87.5 against the baseline.
	r = e.ProcessFrame(reading(0.15, 0.02, 0), at(2200*time.Millisecond))
	require.False(t, r.State.Paused)
	require.InDelta(t, 87.5, r.State.FocusScore, 1e-9)

	sum := e.Finish()
	require.NotNil(t, sum.Averages.FocusScore)
	assert.InDelta(t, 100.0, *sum.Averages.FocusScore, 1e-9)
	require.Len(t, sum.Buckets, 1)
	assert.Equal(t, 2, sum.Buckets[0].Samples)
	assert.InDelta(t, 93.75, sum.Buckets[0].FocusScore, 1e-9)
}

func TestEngineFaceLostDuringManualPause(t *testing.T) {
	e := NewSessionEngine(calibrated, allOn(), t0)
	e.ProcessFrame(reading(0.30, 0.02, 0), at(0))
	e.Pause()

	e.ProcessFrame(nil, at(time.Second))
	r := e.ProcessFrame(nil, at(3*time.Second))
	assert.Equal(t, []AlertType{AlertFaceLost}, raisedTypes(r))
	assert.False(t, r.Vibrate)
	assert.True(t, r.State.Paused)
	assert.False(t, r.State.AutoPaused)

	// Face back: face-lost clears but the manual pause holds.
	r = e.ProcessFrame(reading(0.30, 0.02, 0), at(4*time.Second))
	assert.Equal(t, []AlertType{AlertFaceLost}, r.Cleared)
	assert.True(t, r.State.Paused)
}

func TestEngineManualPauseSuspendsUserDetectors(t *testing.T) {
	e := NewSessionEngine(nil, allOn(), t0)
	e.ProcessFrame(reading(0, 0.01, 0), at(0))
	r := e.ProcessFrame(reading(0, 0.01, 0), at(3*time.Second))
	require.Contains(t, raisedTypes(r), AlertEyesClosed)

	r = e.Pause()
	assert.True(t, r.State.Paused)
	r = e.ProcessFrame(reading(0, 0.01, 0), at(4*time.Second))
	assert.Contains(t, r.Cleared, AlertEyesClosed)

	r = e.ProcessFrame(reading(0, 0.01, 0), at(10*time.Second))
	assert.Empty(t, r.Raised)
	assert.Empty(t, e.Alerts())
}

func TestEngineBreaksCountedPerTransition(t *testing.T) {
	e := NewSessionEngine(nil, allOn(), t0)
	e.Pause()
	e.Pause()
	assert.Equal(t, 1, e.BreaksCount())

	e.Resume()
	e.Pause()
	assert.Equal(t, 2, e.BreaksCount())

	e.Resume()
	assert.Equal(t, 2, e.Finish().BreaksCount)
}

func TestEngineVibrationRateLimit(t *testing.T) {
	e := NewSessionEngine(nil, allOn(), t0)
	e.ProcessFrame(reading(0, 0.01, 0), at(0))
	r := e.ProcessFrame(reading(0, 0.01, 0), at(3*time.Second))
	require.Contains(t, raisedTypes(r), AlertEyesClosed)
	require.True(t, r.Vibrate)

	e.ProcessFrame(nil, at(3100*time.Millisecond))
	r = e.ProcessFrame(nil, at(5100*time.Millisecond))
	require.Equal(t, []AlertType{AlertFaceLost}, raisedTypes(r))
	assert.False(t, r.Vibrate)
}

func TestEngineSweepDismissesAfterDisplayTime(t *testing.T) {
	e := NewSessionEngine(nil, allOn(), t0)
	e.ProcessFrame(reading(0, 0.01, 0), at(0))
	e.ProcessFrame(reading(0, 0.01, 0), at(3*time.Second))
	require.Len(t, e.Alerts(), 1)

	assert.Empty(t, e.Sweep(at(7999*time.Millisecond)).Cleared)
	assert.Equal(t, []AlertType{AlertEyesClosed}, e.Sweep(at(8*time.Second)).Cleared)
	assert.Empty(t, e.Alerts())
}

func TestEngineDisablingAlertClearsIt(t *testing.T) {
	s := allOn()
	e := NewSessionEngine(nil, s, t0)
	e.ProcessFrame(reading(0, 0.01, 0), at(0))
	e.ProcessFrame(reading(0, 0.01, 0), at(3*time.Second))
	require.Len(t, e.Alerts(), 1)

	s.EyesClosedAlertsEnabled = false
	r := e.ApplySettings(s, at(4*time.Second))
	assert.Equal(t, []AlertType{AlertEyesClosed}, r.Cleared)

	r = e.ProcessFrame(reading(0, 0.01, 0), at(10*time.Second))
	assert.NotContains(t, raisedTypes(r), AlertEyesClosed)
}

func TestEngineCameraMonitoringDisabled(t *testing.T) {
	s := allOn()
	s.CameraMonitoringEnabled = false
	e := NewSessionEngine(calibrated, s, t0)

	r := e.ProcessFrame(reading(0.30, 0.02, 0), at(0))
	assert.Equal(t, 0.0, r.State.FocusScore)
	assert.False(t, r.State.FaceDetected)
	assert.Nil(t, e.Finish().Averages.FocusScore)
}

func TestEngineLowBlinkRate(t *testing.T) {
	e := NewSessionEngine(calibrated, allOn(), t0)
	var r Result
	for i := 0; i <= 60; i++ {
		r = e.ProcessFrame(reading(0.30, 0.02, 0), at(time.Duration(i)*time.Second))
	}
	assert.Equal(t, []AlertType{AlertLowBlinkRate}, raisedTypes(r))
}

func TestEngineBucketsSeventyFiveSeconds(t *testing.T) {
	e := NewSessionEngine(calibrated, allOn(), t0)
	for i := 0; i < 75; i++ {
		e.ProcessFrame(reading(0.30, 0.02, 0), at(time.Duration(i)*time.Second))
	}

	sum := e.Finish()
	require.Len(t, sum.Buckets, 3)
	assert.Equal(t, []int{0, 30, 60}, []int{sum.Buckets[0].Sec, sum.Buckets[1].Sec, sum.Buckets[2].Sec})
	assert.Equal(t, 30, sum.Buckets[0].Samples)
	assert.Equal(t, 30, sum.Buckets[1].Samples)
	assert.Equal(t, 15, sum.Buckets[2].Samples)
	for _, b := range sum.Buckets {
		assert.InDelta(t, 100.0, b.FocusScore, 1e-9)
		assert.InDelta(t, 0.30, b.EAR, 1e-9)
	}
	require.NotNil(t, sum.Averages.FocusScore)
	assert.InDelta(t, 100.0, *sum.Averages.FocusScore, 1e-9)
}

func TestEngineDrainCompletedThenFinish(t *testing.T) {
	e := NewSessionEngine(calibrated, allOn(), t0)
	for i := 0; i <= 45; i++ {
		e.ProcessFrame(reading(0.30, 0.02, 0), at(time.Duration(i)*time.Second))
	}

	first := e.DrainCompleted(at(45 * time.Second))
	require.Len(t, first, 1)
	assert.Equal(t, 0, first[0].Sec)
	assert.Empty(t, e.DrainCompleted(at(45*time.Second)))

	rest := e.Finish().Buckets
	require.Len(t, rest, 1)
	assert.Equal(t, 30, rest[0].Sec)
}

func TestEnginePausedFramesNotAggregated(t *testing.T) {
	e := NewSessionEngine(calibrated, allOn(), t0)
	e.ProcessFrame(reading(0.30, 0.02, 0), at(0))
	e.Pause()
	for i := 1; i < 10; i++ {
		e.ProcessFrame(reading(0.30, 0.02, 0), at(time.Duration(i)*time.Second))
	}
	sum := e.Finish()
	require.Len(t, sum.Buckets, 1)
	assert.Equal(t, 1, sum.Buckets[0].Samples)
}

func TestEngineStartClearsPreviousSession(t *testing.T) {
	e := NewSessionEngine(nil, allOn(), t0)
	e.ProcessFrame(reading(0, 0.01, 0), at(0))
	e.ProcessFrame(reading(0, 0.01, 0), at(3*time.Second))
	e.Pause()
	e.Finish()

	e.Start(at(time.Hour))
	assert.Empty(t, e.Alerts())
	assert.Equal(t, 0, e.BreaksCount())
	assert.Equal(t, State{Running: true}, e.State())
	assert.Nil(t, e.Finish().Averages.EAR)
}
