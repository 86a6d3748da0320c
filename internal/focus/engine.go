package focus

import (
	"math"
	"time"

	"github.com/your-org/mindfocus/internal/face"
	"github.com/your-org/mindfocus/internal/models"
)

// State is the engine state visible to the host after every transition.
type State struct {
	ElapsedSeconds int
	FocusScore     float64
	Smoothed       face.Metrics
	FaceDetected   bool
	Paused         bool
	AutoPaused     bool
	Running        bool
}

// Result is what a single transition produced.
type Result struct {
	State   State
	Raised  []Alert
	Cleared []AlertType
	// Vibrate is set when the transition is allowed a haptic pulse.
	Vibrate bool
}

// Changed reports whether the transition raised or cleared an alert.
func (r Result) Changed() bool { return len(r.Raised) > 0 || len(r.Cleared) > 0 }

// Summary is the closing record of a session.
type Summary struct {
	BreaksCount int
	Averages    Averages
	Buckets     []Bucket
}

// SessionEngine owns every piece of mutable state of one focus session:
// the smoothing window, the detector clocks, the active alerts and the
// aggregator. It is not safe for concurrent use; the host serialises frames,
// commands and timer ticks.
type SessionEngine struct {
	ref       Reference
	settings  models.Settings
	startedAt time.Time

	window *Window
	agg    *Aggregator
	state  State

	userPaused bool
	breaks     int

	alerts     alertSet
	eyesClosed sustained
	headPose   sustained
	lowFocus   sustained
	faceLost   sustained
	blink      blinkRate
	yawn       yawnCounter

	lastVibration time.Time

	out Result
}

// NewSessionEngine returns a running engine. A nil baseline selects the
// default reference values.
func NewSessionEngine(baseline *models.Baseline, settings models.Settings, startedAt time.Time) *SessionEngine {
	e := &SessionEngine{
		ref:        ReferenceFrom(baseline),
		settings:   settings,
		window:     NewWindow(WindowSize),
		agg:        NewAggregator(BucketWidth),
		eyesClosed: sustained{hold: eyesClosedHold},
		headPose:   sustained{hold: headDeviationHold},
		lowFocus:   sustained{hold: lowFocusHold},
		faceLost:   sustained{hold: faceLostHold},
	}
	e.Start(startedAt)
	return e
}

// Start resets the engine to a fresh running session beginning at now.
func (e *SessionEngine) Start(now time.Time) {
	e.window.Reset()
	e.agg.Reset()
	e.alerts = make(alertSet)
	e.clearContinuous(false)
	e.userPaused = false
	e.breaks = 0
	e.lastVibration = time.Time{}
	e.startedAt = now
	e.state = State{Running: true}
}

// State returns the current state.
func (e *SessionEngine) State() State { return e.state }

// Alerts returns the active alerts in display order.
func (e *SessionEngine) Alerts() []Alert { return e.alerts.sorted() }

// BreaksCount returns the number of manual pauses so far.
func (e *SessionEngine) BreaksCount() int { return e.breaks }

// ProcessFrame advances the engine by one camera frame. A nil m means no
// face was detected in the frame.
func (e *SessionEngine) ProcessFrame(m *face.Metrics, now time.Time) Result {
	e.begin()

	if !e.settings.CameraMonitoringEnabled {
		e.resetForMonitoringDisabled()
		return e.result()
	}

	manualPause := e.state.Paused && !e.state.AutoPaused

	if m == nil {
		if manualPause {
			e.evaluate(nil, e.state.FocusScore, false, now, false)
			return e.result()
		}
		e.state.FaceDetected = false
		e.state.FocusScore = Decay(e.state.FocusScore)
		e.evaluate(nil, e.state.FocusScore, false, now, true)
		return e.result()
	}

	if manualPause {
		e.evaluate(nil, e.state.FocusScore, true, now, false)
		return e.result()
	}

	e.window.Push(*m)
	avg := e.window.Mean()
	score := Score(avg, e.ref)
	e.state.Smoothed = avg
	e.state.FocusScore = score
	e.state.FaceDetected = true

	// The frame that ends an auto-pause counts towards its bucket but not
	// towards the session means.
	wasPaused := e.state.Paused
	e.evaluate(&avg, score, true, now, true)

	if !wasPaused {
		e.agg.AddSession(score, avg)
	}
	if !e.state.Paused {
		e.agg.AddBucket(now.Sub(e.startedAt), score, avg)
	}
	return e.result()
}

// Tick advances the elapsed-seconds counter; it is driven at 1 Hz.
func (e *SessionEngine) Tick() State {
	if e.state.Running && !e.state.Paused {
		e.state.ElapsedSeconds++
	}
	return e.state
}

// Sweep dismisses every alert other than face lost that has been displayed
// for the display duration.
func (e *SessionEngine) Sweep(now time.Time) Result {
	e.begin()
	for _, a := range e.alerts.sorted() {
		if a.Type == AlertFaceLost {
			continue
		}
		if now.Sub(a.Timestamp) >= alertDisplayTime {
			e.clear(a.Type)
		}
	}
	return e.result()
}

// Pause is the user's manual pause. Only a transition from running counts
// as a break.
func (e *SessionEngine) Pause() Result {
	e.begin()
	wasPaused := e.state.Paused
	e.userPaused = true
	e.setAutoPaused(false)
	e.state.Paused = true
	e.state.AutoPaused = false
	if !wasPaused {
		e.breaks++
	}
	return e.result()
}

// Resume ends a manual pause. Face tracking resumes from the next frame.
func (e *SessionEngine) Resume() Result {
	e.begin()
	e.userPaused = false
	e.setAutoPaused(false)
	e.clear(AlertFaceLost)
	e.state.Paused = false
	e.state.AutoPaused = false
	return e.result()
}

// ApplySettings switches to next, clearing the state of every alert type
// that has just been disabled.
func (e *SessionEngine) ApplySettings(next models.Settings, now time.Time) Result {
	e.begin()
	prev := e.settings
	e.settings = next

	if prev.CameraMonitoringEnabled && !next.CameraMonitoringEnabled {
		e.resetForMonitoringDisabled()
	}
	if prev.EyesClosedAlertsEnabled && !next.EyesClosedAlertsEnabled {
		e.eyesClosed.reset()
		e.clear(AlertEyesClosed)
	}
	if prev.BlinkAlertsEnabled && !next.BlinkAlertsEnabled {
		e.blink.reset()
		e.clear(AlertLowBlinkRate)
	} else if !prev.BlinkAlertsEnabled && next.BlinkAlertsEnabled {
		e.blink.last = now
	}
	if prev.HeadPoseAlertsEnabled && !next.HeadPoseAlertsEnabled {
		e.headPose.reset()
		e.clear(AlertHeadPoseDeviation)
	}
	if prev.YawnAlertsEnabled && !next.YawnAlertsEnabled {
		e.yawn.reset()
		e.clear(AlertRepeatedYawn)
	}
	if prev.LowFocusAlertsEnabled && !next.LowFocusAlertsEnabled {
		e.lowFocus.reset()
		e.clear(AlertPersistentLowFocus)
	}
	if prev.FaceLostAlertsEnabled && !next.FaceLostAlertsEnabled {
		e.faceLost.reset()
		e.clear(AlertFaceLost)
		e.setAutoPaused(false)
	}
	return e.result()
}

// DrainCompleted returns the metric buckets that are complete at now.
func (e *SessionEngine) DrainCompleted(now time.Time) []Bucket {
	return e.agg.DrainCompleted(now.Sub(e.startedAt))
}

// Finish stops the session and returns its closing summary with every
// bucket not yet drained. The engine must be restarted with Start before
// it is used again.
func (e *SessionEngine) Finish() Summary {
	s := Summary{
		BreaksCount: e.breaks,
		Averages:    e.agg.Averages(),
		Buckets:     e.agg.DrainAll(),
	}
	e.window.Reset()
	e.agg.Reset()
	e.clearContinuous(false)
	e.alerts = make(alertSet)
	e.userPaused = false
	e.state.Running = false
	e.state.Paused = false
	e.state.AutoPaused = false
	return s
}

// evaluate runs the detectors for one frame. avg is nil when there is no
// fresh smoothed reading; allowUser is false during a manual pause, where
// only face tracking continues.
func (e *SessionEngine) evaluate(avg *face.Metrics, score float64, faceDetected bool, now time.Time, allowUser bool) {
	if !faceDetected {
		if e.faceLost.observe(now) {
			if e.settings.FaceLostAlertsEnabled {
				e.raise(AlertFaceLost, now)
				if !e.userPaused {
					e.setAutoPaused(true)
				}
			} else {
				e.faceLost.reset()
			}
		}
		e.clearContinuous(true)
		return
	}

	e.faceLost.reset()
	e.clear(AlertFaceLost)
	if e.state.AutoPaused && !e.userPaused {
		e.setAutoPaused(false)
	}
	if e.blink.last.IsZero() {
		e.blink.last = now
	}

	if !allowUser {
		e.clearUserManaged()
		return
	}

	ref := e.ref

	if avg != nil {
		if e.settings.EyesClosedAlertsEnabled {
			if avg.EAR <= ref.EAR*eyesClosedRatio {
				if e.eyesClosed.observe(now) {
					e.raise(AlertEyesClosed, now)
				}
			} else {
				e.eyesClosed.reset()
				e.clear(AlertEyesClosed)
			}
		} else {
			e.eyesClosed.reset()
			e.clear(AlertEyesClosed)
		}

		if e.settings.BlinkAlertsEnabled {
			if e.blink.observe(avg.EAR, ref.EAR, now) {
				e.clear(AlertLowBlinkRate)
			}
		} else {
			e.blink.clearEdges()
			e.clear(AlertLowBlinkRate)
		}
	} else {
		e.eyesClosed.reset()
		e.blink.clearEdges()
	}

	e.blink.prune(now)
	if e.settings.BlinkAlertsEnabled && e.blink.low(now) {
		e.raise(AlertLowBlinkRate, now)
	} else {
		e.clear(AlertLowBlinkRate)
	}

	if avg != nil {
		if e.settings.HeadPoseAlertsEnabled {
			if math.Abs(avg.HeadPitchDeg-ref.HeadDeg) >= headDeviationDeg {
				if e.headPose.observe(now) {
					e.raise(AlertHeadPoseDeviation, now)
				}
			} else {
				e.headPose.reset()
				e.clear(AlertHeadPoseDeviation)
			}
		} else {
			e.headPose.reset()
			e.clear(AlertHeadPoseDeviation)
		}

		if e.settings.YawnAlertsEnabled {
			e.yawn.observe(avg.MAR, ref.MAR, now)
		} else {
			e.yawn.reset()
			e.clear(AlertRepeatedYawn)
		}
	} else {
		e.headPose.reset()
		e.yawn.reset()
	}

	e.yawn.prune(now)
	if e.settings.YawnAlertsEnabled && e.yawn.repeated() {
		e.raise(AlertRepeatedYawn, now)
	} else {
		e.clear(AlertRepeatedYawn)
	}

	if e.settings.LowFocusAlertsEnabled && score < lowFocusThreshold {
		if e.lowFocus.observe(now) {
			e.raise(AlertPersistentLowFocus, now)
		}
	} else {
		e.lowFocus.reset()
		e.clear(AlertPersistentLowFocus)
	}
}

func (e *SessionEngine) raise(t AlertType, now time.Time) {
	if !t.enabledIn(e.settings) {
		return
	}
	if _, ok := e.alerts[t]; ok {
		return
	}
	a := Alert{Type: t, Message: t.Message(), Timestamp: now}
	e.alerts[t] = a
	e.out.Raised = append(e.out.Raised, a)
	if !e.userPaused {
		e.vibrate(now)
	}
}

func (e *SessionEngine) clear(t AlertType) {
	if _, ok := e.alerts[t]; !ok {
		return
	}
	delete(e.alerts, t)
	e.out.Cleared = append(e.out.Cleared, t)
}

func (e *SessionEngine) vibrate(now time.Time) {
	if !e.lastVibration.IsZero() && now.Sub(e.lastVibration) < vibrationInterval {
		return
	}
	e.lastVibration = now
	e.out.Vibrate = true
}

func (e *SessionEngine) setAutoPaused(on bool) {
	if on {
		if !e.state.AutoPaused {
			e.state.Paused = true
			e.state.AutoPaused = true
		}
		return
	}
	if e.state.AutoPaused {
		e.state.Paused = e.userPaused
		e.state.AutoPaused = false
	}
}

// clearContinuous resets every detector clock and clears the alerts they
// own. Face tracking is kept when exceptFace is set.
func (e *SessionEngine) clearContinuous(exceptFace bool) {
	if !exceptFace {
		e.faceLost.reset()
		e.clear(AlertFaceLost)
	}
	e.eyesClosed.reset()
	e.blink.reset()
	e.headPose.reset()
	e.lowFocus.reset()
	e.yawn.reset()
	e.clear(AlertEyesClosed)
	e.clear(AlertLowBlinkRate)
	e.clear(AlertHeadPoseDeviation)
	e.clear(AlertRepeatedYawn)
	e.clear(AlertPersistentLowFocus)
}

// clearUserManaged drops everything but face tracking during a manual pause.
func (e *SessionEngine) clearUserManaged() {
	for _, t := range AllAlertTypes {
		if t != AlertFaceLost {
			e.clear(t)
		}
	}
	e.eyesClosed.reset()
	e.headPose.reset()
	e.lowFocus.reset()
	e.blink.reset()
	e.yawn.reset()
}

func (e *SessionEngine) resetForMonitoringDisabled() {
	e.clearContinuous(false)
	for _, t := range AllAlertTypes {
		e.clear(t)
	}
	e.blink.last = time.Time{}
	e.setAutoPaused(false)
	e.state.FocusScore = 0
	e.state.FaceDetected = false
}

func (e *SessionEngine) begin() { e.out = Result{} }

func (e *SessionEngine) result() Result {
	r := e.out
	r.State = e.state
	e.out = Result{}
	return r
}
