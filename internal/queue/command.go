package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/your-org/mindfocus/internal/models"
)

// Control actions understood by the worker.
const (
	ActionSessionStart      = "session.start"
	ActionSessionPause      = "session.pause"
	ActionSessionResume     = "session.resume"
	ActionSessionStop       = "session.stop"
	ActionCalibrationStart  = "calibration.start"
	ActionCalibrationPause  = "calibration.pause"
	ActionCalibrationResume = "calibration.resume"
	ActionCalibrationStop   = "calibration.stop"
	ActionSettingsApply     = "settings.apply"
)

// Command is a control request sent from the API to the worker.
type Command struct {
	Action    string           `json:"action"`
	RunID     uuid.UUID        `json:"run_id,omitempty"`
	UserID    uuid.UUID        `json:"user_id,omitempty"`
	Latitude  *float64         `json:"latitude,omitempty"`
	Longitude *float64         `json:"longitude,omitempty"`
	Settings  *models.Settings `json:"settings,omitempty"`
}

// Reply is the worker's answer to a Command. Code carries the failure class
// so the API can map it to a status.
type Reply struct {
	OK            bool             `json:"ok"`
	Error         string           `json:"error,omitempty"`
	Code          string           `json:"code,omitempty"`
	Session       *models.Session  `json:"session,omitempty"`
	Baseline      *models.Baseline `json:"baseline,omitempty"`
	CalibrationID *uuid.UUID       `json:"calibration_id,omitempty"`
}

// Reply failure codes.
const (
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeInvalid      = "invalid"
	CodeUnavailable  = "unavailable"
	CodeInsufficient = "insufficient_data"
	CodeInternal     = "internal"
)

// HapticCommand is the payload published on haptics.<runID>.
type HapticCommand struct {
	DurationMs int `json:"duration_ms"`
}

// ParseCommand parses a NATS message into a Command.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("parse command: %w", err)
	}
	return cmd, nil
}
