package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/mindfocus/internal/face"
	"github.com/your-org/mindfocus/internal/models"
	"github.com/your-org/mindfocus/pkg/dto"
)

type FrameHandler struct {
	ctl Controller
}

func NewFrameHandler(ctl Controller) *FrameHandler {
	return &FrameHandler{ctl: ctl}
}

// Ingest relays one landmark frame to the LANDMARKS stream for the run.
func (h *FrameHandler) Ingest(c *gin.Context) {
	runID, ok := parseID(c, "id", "run")
	if !ok {
		return
	}

	var req dto.FrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	frame := models.LandmarkFrame{RunID: runID, CapturedAt: time.Now().UTC()}
	if req.CapturedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, req.CapturedAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "captured_at must be RFC 3339"})
			return
		}
		frame.CapturedAt = t
	}
	if len(req.Points) > 0 {
		frame.Points = make([]face.Point, len(req.Points))
		for i, p := range req.Points {
			frame.Points[i] = face.Point{X: p.X, Y: p.Y, Z: p.Z}
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.ctl.PublishLandmarks(ctx, runID.String(), frame); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to queue frame"})
		return
	}
	c.Status(http.StatusAccepted)
}
