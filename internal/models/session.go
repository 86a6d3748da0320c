package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is open while EndedAt is nil. It is closed exactly once, when the
// averages are written.
type Session struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	UserID          uuid.UUID  `json:"user_id" db:"user_id"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	BreaksCount     int        `json:"breaks_count" db:"breaks_count"`
	FocusAvg        *float64   `json:"focus_avg,omitempty" db:"focus_avg"`
	EARAvg          *float64   `json:"ear_avg,omitempty" db:"ear_avg"`
	MARAvg          *float64   `json:"mar_avg,omitempty" db:"mar_avg"`
	HeadPitchAvgDeg *float64   `json:"head_pitch_avg_deg,omitempty" db:"head_pitch_avg_deg"`
	Latitude        *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude       *float64   `json:"longitude,omitempty" db:"longitude"`
}

// SessionClose carries the values written when a session is closed.
type SessionClose struct {
	EndedAt         time.Time
	BreaksCount     int
	FocusAvg        *float64
	EARAvg          *float64
	MARAvg          *float64
	HeadPitchAvgDeg *float64
}

// Metric is one averaged time bucket of a session.
type Metric struct {
	ID           uuid.UUID `json:"id" db:"id"`
	SessionID    uuid.UUID `json:"session_id" db:"session_id"`
	BucketSec    int       `json:"bucket_sec" db:"bucket_sec"`
	FocusScore   float64   `json:"focus_score" db:"focus_score"`
	EAR          float64   `json:"ear" db:"ear"`
	MAR          float64   `json:"mar" db:"mar"`
	HeadPitchDeg float64   `json:"head_pitch_deg" db:"head_pitch_deg"`
}

// SessionExport is the archived form of a closed session.
type SessionExport struct {
	Session    Session   `json:"session"`
	Metrics    []Metric  `json:"metrics"`
	ExportedAt time.Time `json:"exported_at"`
}
