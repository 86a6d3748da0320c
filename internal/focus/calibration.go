package focus

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/mindfocus/internal/face"
	"github.com/your-org/mindfocus/internal/models"
)

// CalibrationDuration is the length of a full baseline calibration run.
const CalibrationDuration = 60 * time.Second

// calibrationBlinkEAR is the fixed raw-EAR threshold used to count blinks
// while calibrating.
const calibrationBlinkEAR = 0.18

// ErrInsufficientData is returned when a calibration collected no samples.
var ErrInsufficientData = errors.New("insufficient calibration data")

// CalibrationSamples is everything a calibration run collected.
type CalibrationSamples struct {
	EAR            []float64 `json:"ear"`
	MAR            []float64 `json:"mar"`
	HeadPitchDeg   []float64 `json:"head_pitch_deg"`
	Blinks         int       `json:"blinks"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
}

// ComputeBaseline reduces calibration samples to a baseline for userID.
// It is a pure function of its inputs.
func ComputeBaseline(userID uuid.UUID, s CalibrationSamples, now time.Time) (models.Baseline, error) {
	if len(s.EAR) == 0 || len(s.MAR) == 0 || len(s.HeadPitchDeg) == 0 {
		return models.Baseline{}, ErrInsufficientData
	}

	minutes := 1.0
	if s.ElapsedSeconds > 0 {
		minutes = float64(s.ElapsedSeconds) / 60
	}

	return models.Baseline{
		UserID:           userID,
		EARMean:          average(s.EAR),
		MARMean:          average(s.MAR),
		HeadPitchMeanDeg: average(s.HeadPitchDeg),
		BlinkPerMin:      float64(s.Blinks) / minutes,
		NoiseDBMean:      0,
		CreatedAt:        now,
	}, nil
}

func average(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// CalibrationState is the calibration state visible to the host.
type CalibrationState struct {
	ElapsedSeconds int
	FocusScore     float64
	Smoothed       face.Metrics
	FaceDetected   bool
	Running        bool
	Paused         bool
	Completed      bool
}

// Calibration collects the samples of one baseline calibration run. Like
// SessionEngine it expects serialised access.
type Calibration struct {
	duration int
	window   *Window
	samples  CalibrationSamples
	blinking bool
	state    CalibrationState
}

// NewCalibration returns an idle calibration of the given length.
// A non-positive duration selects CalibrationDuration.
func NewCalibration(duration time.Duration) *Calibration {
	secs := int(duration / time.Second)
	if secs <= 0 {
		secs = int(CalibrationDuration / time.Second)
	}
	return &Calibration{duration: secs, window: NewWindow(WindowSize)}
}

// Start begins a fresh run. Starting a running calibration is a no-op.
func (c *Calibration) Start() CalibrationState {
	if c.state.Running {
		return c.state
	}
	c.window.Reset()
	c.samples = CalibrationSamples{}
	c.blinking = false
	c.state = CalibrationState{Running: true}
	return c.state
}

func (c *Calibration) Pause() CalibrationState {
	if c.state.Running && !c.state.Paused {
		c.state.Paused = true
	}
	return c.state
}

func (c *Calibration) Resume() CalibrationState {
	if c.state.Running && c.state.Paused {
		c.state.Paused = false
	}
	return c.state
}

// ProcessFrame feeds one frame. A nil m means no face.
func (c *Calibration) ProcessFrame(m *face.Metrics) CalibrationState {
	if m == nil {
		c.state.FaceDetected = false
		c.state.FocusScore = Decay(c.state.FocusScore)
		return c.state
	}

	if c.state.Running && !c.state.Paused {
		c.window.Push(*m)
		c.samples.EAR = append(c.samples.EAR, m.EAR)
		c.samples.MAR = append(c.samples.MAR, m.MAR)
		c.samples.HeadPitchDeg = append(c.samples.HeadPitchDeg, m.HeadPitchDeg)
		c.detectBlink(m.EAR)
	}

	avg := *m
	if c.window.Len() > 0 {
		avg = c.window.Mean()
	}
	c.state.Smoothed = avg
	c.state.FocusScore = ColdStartScore(avg)
	c.state.FaceDetected = true
	return c.state
}

// detectBlink counts a blink on the rising edge after EAR dipped below the
// fixed threshold.
func (c *Calibration) detectBlink(ear float64) {
	if ear < calibrationBlinkEAR && !c.blinking {
		c.blinking = true
	} else if ear >= calibrationBlinkEAR && c.blinking {
		c.samples.Blinks++
		c.blinking = false
	}
}

// Tick advances the timer by one second and reports whether the run has
// just reached its full duration.
func (c *Calibration) Tick() (CalibrationState, bool) {
	if !c.state.Running || c.state.Paused {
		return c.state, false
	}
	c.state.ElapsedSeconds++
	c.samples.ElapsedSeconds = c.state.ElapsedSeconds
	if c.state.ElapsedSeconds >= c.duration {
		c.state.Running = false
		c.state.Completed = true
		return c.state, true
	}
	return c.state, false
}

// Stop ends the run early. The samples remain available.
func (c *Calibration) Stop() CalibrationState {
	c.state.Running = false
	c.state.Paused = false
	c.window.Reset()
	return c.state
}

// State returns the current state.
func (c *Calibration) State() CalibrationState { return c.state }

// Samples returns a copy of the collected samples.
func (c *Calibration) Samples() CalibrationSamples {
	s := c.samples
	s.EAR = append([]float64(nil), c.samples.EAR...)
	s.MAR = append([]float64(nil), c.samples.MAR...)
	s.HeadPitchDeg = append([]float64(nil), c.samples.HeadPitchDeg...)
	return s
}

// Baseline computes the baseline from the samples collected so far.
func (c *Calibration) Baseline(userID uuid.UUID, now time.Time) (models.Baseline, error) {
	return ComputeBaseline(userID, c.samples, now)
}
