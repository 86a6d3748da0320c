package models

import (
	"time"

	"github.com/google/uuid"
)

// Baseline holds a user's calibration reference values. There is at most
// one per user; recalibration replaces it.
type Baseline struct {
	ID               uuid.UUID `json:"id" db:"id"`
	UserID           uuid.UUID `json:"user_id" db:"user_id"`
	EARMean          float64   `json:"ear_mean" db:"ear_mean"`
	MARMean          float64   `json:"mar_mean" db:"mar_mean"`
	HeadPitchMeanDeg float64   `json:"head_pitch_mean_deg" db:"head_pitch_mean_deg"`
	BlinkPerMin      float64   `json:"blink_per_min" db:"blink_per_min"`
	NoiseDBMean      float64   `json:"noise_db_mean" db:"noise_db_mean"` // reserved, always 0
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
