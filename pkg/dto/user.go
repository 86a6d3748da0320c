package dto

import "github.com/google/uuid"

type CreateUserRequest struct {
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"display_name"`
}

type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   string    `json:"created_at"`
}

// UpdateSettingsRequest changes only the switches that are present.
type UpdateSettingsRequest struct {
	CameraMonitoringEnabled *bool `json:"camera_monitoring_enabled"`
	LowFocusAlertsEnabled   *bool `json:"low_focus_alerts_enabled"`
	EyesClosedAlertsEnabled *bool `json:"eyes_closed_alerts_enabled"`
	BlinkAlertsEnabled      *bool `json:"blink_alerts_enabled"`
	HeadPoseAlertsEnabled   *bool `json:"head_pose_alerts_enabled"`
	YawnAlertsEnabled       *bool `json:"yawn_alerts_enabled"`
	FaceLostAlertsEnabled   *bool `json:"face_lost_alerts_enabled"`
	GPSEnabled              *bool `json:"gps_enabled"`
}

type SettingsResponse struct {
	UserID                  uuid.UUID `json:"user_id"`
	CameraMonitoringEnabled bool      `json:"camera_monitoring_enabled"`
	LowFocusAlertsEnabled   bool      `json:"low_focus_alerts_enabled"`
	EyesClosedAlertsEnabled bool      `json:"eyes_closed_alerts_enabled"`
	BlinkAlertsEnabled      bool      `json:"blink_alerts_enabled"`
	HeadPoseAlertsEnabled   bool      `json:"head_pose_alerts_enabled"`
	YawnAlertsEnabled       bool      `json:"yawn_alerts_enabled"`
	FaceLostAlertsEnabled   bool      `json:"face_lost_alerts_enabled"`
	GPSEnabled              bool      `json:"gps_enabled"`
	UpdatedAt               string    `json:"updated_at,omitempty"`
	// Applied is false when the running session could not be told.
	Applied bool `json:"applied"`
}

type BaselineResponse struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	EARMean          float64   `json:"ear_mean"`
	MARMean          float64   `json:"mar_mean"`
	HeadPitchMeanDeg float64   `json:"head_pitch_mean_deg"`
	BlinkPerMin      float64   `json:"blink_per_min"`
	NoiseDBMean      float64   `json:"noise_db_mean"`
	CreatedAt        string    `json:"created_at"`
}
