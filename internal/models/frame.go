package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/mindfocus/internal/face"
)

// LandmarkFrame is the message a device publishes to NATS for every camera
// frame. An empty Points slice means the detector found no face.
type LandmarkFrame struct {
	RunID      uuid.UUID    `json:"run_id"` // session or calibration id
	CapturedAt time.Time    `json:"captured_at"`
	Points     []face.Point `json:"points,omitempty"`
}
