package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventState                EventType = "state"
	EventAlertRaised          EventType = "alert_raised"
	EventAlertCleared         EventType = "alert_cleared"
	EventSessionClosed        EventType = "session_closed"
	EventCalibrationState     EventType = "calibration_state"
	EventCalibrationCompleted EventType = "calibration_completed"
	EventCalibrationFailed    EventType = "calibration_failed"
)

// EngineEvent is published on the EVENTS stream by the worker and fanned
// out to WebSocket clients by the API.
type EngineEvent struct {
	Type      EventType      `json:"type"`
	RunID     uuid.UUID      `json:"run_id"`
	UserID    uuid.UUID      `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     *StateSnapshot `json:"state,omitempty"`
	Alert     *AlertPayload  `json:"alert,omitempty"`
	Session   *Session       `json:"session,omitempty"`
	Baseline  *Baseline      `json:"baseline,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// StateSnapshot is the UI-facing view of a running session or calibration.
type StateSnapshot struct {
	ElapsedSeconds int      `json:"elapsed_seconds"`
	FocusScore     float64  `json:"focus_score"`
	EAR            float64  `json:"ear"`
	MAR            float64  `json:"mar"`
	HeadPitchDeg   float64  `json:"head_pitch_deg"`
	FaceDetected   bool     `json:"face_detected"`
	Paused         bool     `json:"paused"`
	AutoPaused     bool     `json:"auto_paused"`
	Running        bool     `json:"running"`
	Completed      bool     `json:"completed,omitempty"`
	ActiveAlerts   []string `json:"active_alerts,omitempty"`
}

type AlertPayload struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
