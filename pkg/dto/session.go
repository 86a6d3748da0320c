package dto

import "github.com/google/uuid"

type StartSessionRequest struct {
	Latitude  *float64 `json:"latitude" binding:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,min=-180,max=180"`
}

type SessionResponse struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	StartedAt       string    `json:"started_at"`
	EndedAt         string    `json:"ended_at,omitempty"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	Running         bool      `json:"running"`
	BreaksCount     int       `json:"breaks_count"`
	FocusAvg        *float64  `json:"focus_avg,omitempty"`
	EARAvg          *float64  `json:"ear_avg,omitempty"`
	MARAvg          *float64  `json:"mar_avg,omitempty"`
	HeadPitchAvgDeg *float64  `json:"head_pitch_avg_deg,omitempty"`
	Latitude        *float64  `json:"latitude,omitempty"`
	Longitude       *float64  `json:"longitude,omitempty"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
}

type MetricPoint struct {
	BucketSec    int     `json:"bucket_sec"`
	FocusScore   float64 `json:"focus_score"`
	EAR          float64 `json:"ear"`
	MAR          float64 `json:"mar"`
	HeadPitchDeg float64 `json:"head_pitch_deg"`
}

// MetricSeriesResponse is a session's metric series reduced for plotting.
// Total is the number of stored buckets before reduction.
type MetricSeriesResponse struct {
	SessionID uuid.UUID     `json:"session_id"`
	Points    []MetricPoint `json:"points"`
	Total     int           `json:"total"`
}

type CalibrationResponse struct {
	CalibrationID uuid.UUID `json:"calibration_id"`
	UserID        uuid.UUID `json:"user_id"`
	DurationSec   int       `json:"duration_sec"`
}

type LandmarkPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FrameRequest is one frame of landmarks posted by a device that cannot
// reach NATS directly. An empty Points list means no face was found.
type FrameRequest struct {
	CapturedAt string          `json:"captured_at"`
	Points     []LandmarkPoint `json:"points"`
}
