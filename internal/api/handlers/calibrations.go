package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/mindfocus/internal/queue"
	"github.com/your-org/mindfocus/pkg/dto"
)

type CalibrationHandler struct {
	ctl      Controller
	timeout  time.Duration
	duration time.Duration
}

func NewCalibrationHandler(ctl Controller, timeout, duration time.Duration) *CalibrationHandler {
	return &CalibrationHandler{ctl: ctl, timeout: timeout, duration: duration}
}

// Start begins a baseline calibration. The device then publishes frames
// under the returned calibration id.
func (h *CalibrationHandler) Start(c *gin.Context) {
	userID, ok := parseID(c, "id", "user")
	if !ok {
		return
	}

	reply := control(c, h.ctl, h.timeout, queue.Command{Action: queue.ActionCalibrationStart, UserID: userID})
	if reply == nil {
		return
	}
	if reply.CalibrationID == nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "worker returned no calibration id"})
		return
	}
	c.JSON(http.StatusCreated, dto.CalibrationResponse{
		CalibrationID: *reply.CalibrationID,
		UserID:        userID,
		DurationSec:   int(h.duration / time.Second),
	})
}

func (h *CalibrationHandler) Pause(c *gin.Context) {
	h.simple(c, queue.ActionCalibrationPause, "paused")
}

func (h *CalibrationHandler) Resume(c *gin.Context) {
	h.simple(c, queue.ActionCalibrationResume, "running")
}

func (h *CalibrationHandler) simple(c *gin.Context, action, status string) {
	id, ok := parseID(c, "id", "calibration")
	if !ok {
		return
	}
	if reply := control(c, h.ctl, h.timeout, queue.Command{Action: action, RunID: id}); reply == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "calibration_id": id})
}

// Stop ends the calibration early and returns the baseline computed from
// the frames collected so far.
func (h *CalibrationHandler) Stop(c *gin.Context) {
	id, ok := parseID(c, "id", "calibration")
	if !ok {
		return
	}
	reply := control(c, h.ctl, h.timeout, queue.Command{Action: queue.ActionCalibrationStop, RunID: id})
	if reply == nil {
		return
	}
	if reply.Baseline == nil {
		c.JSON(http.StatusOK, gin.H{"status": "stopped", "calibration_id": id})
		return
	}
	c.JSON(http.StatusOK, baselineToResponse(reply.Baseline))
}
