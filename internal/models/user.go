package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Settings are the per-user switches the engine reacts to while a session
// is running.
type Settings struct {
	UserID                  uuid.UUID `json:"user_id" db:"user_id"`
	CameraMonitoringEnabled bool      `json:"camera_monitoring_enabled" db:"camera_monitoring_enabled"`
	LowFocusAlertsEnabled   bool      `json:"low_focus_alerts_enabled" db:"low_focus_alerts_enabled"`
	EyesClosedAlertsEnabled bool      `json:"eyes_closed_alerts_enabled" db:"eyes_closed_alerts_enabled"`
	BlinkAlertsEnabled      bool      `json:"blink_alerts_enabled" db:"blink_alerts_enabled"`
	HeadPoseAlertsEnabled   bool      `json:"head_pose_alerts_enabled" db:"head_pose_alerts_enabled"`
	YawnAlertsEnabled       bool      `json:"yawn_alerts_enabled" db:"yawn_alerts_enabled"`
	FaceLostAlertsEnabled   bool      `json:"face_lost_alerts_enabled" db:"face_lost_alerts_enabled"`
	GPSEnabled              bool      `json:"gps_enabled" db:"gps_enabled"`
	UpdatedAt               time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultSettings is what a user gets before ever saving settings.
// Camera monitoring is opt-in; every alert is on.
func DefaultSettings(userID uuid.UUID) Settings {
	return Settings{
		UserID:                  userID,
		CameraMonitoringEnabled: false,
		LowFocusAlertsEnabled:   true,
		EyesClosedAlertsEnabled: true,
		BlinkAlertsEnabled:      true,
		HeadPoseAlertsEnabled:   true,
		YawnAlertsEnabled:       true,
		FaceLostAlertsEnabled:   true,
		GPSEnabled:              true,
	}
}
