package focus

import (
	"sort"
	"time"

	"github.com/your-org/mindfocus/internal/models"
)

// AlertType identifies one detector. The order is the display order.
type AlertType int

const (
	AlertEyesClosed AlertType = iota
	AlertLowBlinkRate
	AlertHeadPoseDeviation
	AlertRepeatedYawn
	AlertPersistentLowFocus
	AlertFaceLost
)

// AllAlertTypes lists every detector in display order.
var AllAlertTypes = []AlertType{
	AlertEyesClosed,
	AlertLowBlinkRate,
	AlertHeadPoseDeviation,
	AlertRepeatedYawn,
	AlertPersistentLowFocus,
	AlertFaceLost,
}

func (t AlertType) String() string {
	switch t {
	case AlertEyesClosed:
		return "eyes_closed"
	case AlertLowBlinkRate:
		return "low_blink_rate"
	case AlertHeadPoseDeviation:
		return "head_pose_deviation"
	case AlertRepeatedYawn:
		return "repeated_yawn"
	case AlertPersistentLowFocus:
		return "persistent_low_focus"
	case AlertFaceLost:
		return "face_lost"
	default:
		return "unknown"
	}
}

// Message is the text shown to the user for an active alert.
func (t AlertType) Message() string {
	switch t {
	case AlertEyesClosed:
		return "Your eyes have been closed for a while. Stay awake!"
	case AlertLowBlinkRate:
		return "You are blinking too little. Rest your eyes for a moment."
	case AlertHeadPoseDeviation:
		return "Your head has been turned away from the screen."
	case AlertRepeatedYawn:
		return "You keep yawning. Consider taking a break."
	case AlertPersistentLowFocus:
		return "Your focus has been low for several minutes."
	case AlertFaceLost:
		return "Face not detected. The session is paused until you are back."
	default:
		return ""
	}
}

// enabledIn reports whether the user has this alert switched on.
func (t AlertType) enabledIn(s models.Settings) bool {
	switch t {
	case AlertEyesClosed:
		return s.EyesClosedAlertsEnabled
	case AlertLowBlinkRate:
		return s.BlinkAlertsEnabled
	case AlertHeadPoseDeviation:
		return s.HeadPoseAlertsEnabled
	case AlertRepeatedYawn:
		return s.YawnAlertsEnabled
	case AlertPersistentLowFocus:
		return s.LowFocusAlertsEnabled
	case AlertFaceLost:
		return s.FaceLostAlertsEnabled
	default:
		return false
	}
}

// Alert is an active alert. Timestamp is when it became active.
type Alert struct {
	Type      AlertType
	Message   string
	Timestamp time.Time
}

// Payload converts the alert to its wire form.
func (a Alert) Payload() *models.AlertPayload {
	return &models.AlertPayload{
		Type:      a.Type.String(),
		Message:   a.Message,
		Timestamp: a.Timestamp,
	}
}

// alertSet holds at most one active alert per type.
type alertSet map[AlertType]Alert

func (s alertSet) sorted() []Alert {
	out := make([]Alert, 0, len(s))
	for _, a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
