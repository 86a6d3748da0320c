package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/mindfocus/internal/focus"
	"github.com/your-org/mindfocus/internal/models"
	"github.com/your-org/mindfocus/internal/queue"
	"github.com/your-org/mindfocus/internal/storage"
	"github.com/your-org/mindfocus/pkg/dto"
)

type SessionHandler struct {
	db      storage.Store
	objects ObjectStore // nil when exports are disabled
	ctl     Controller
	timeout time.Duration
}

func NewSessionHandler(db storage.Store, objects ObjectStore, ctl Controller, timeout time.Duration) *SessionHandler {
	return &SessionHandler{db: db, objects: objects, ctl: ctl, timeout: timeout}
}

// Start opens a session for the user in the worker.
func (h *SessionHandler) Start(c *gin.Context) {
	userID, ok := parseID(c, "id", "user")
	if !ok {
		return
	}

	var req dto.StartSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	reply := control(c, h.ctl, h.timeout, queue.Command{
		Action:    queue.ActionSessionStart,
		UserID:    userID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if reply == nil {
		return
	}
	if reply.Session == nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "worker returned no session"})
		return
	}
	c.JSON(http.StatusCreated, sessionToResponse(reply.Session))
}

func (h *SessionHandler) Get(c *gin.Context) {
	s, ok := h.loadSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionToResponse(s))
}

// List returns the user's completed sessions, newest first.
func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := parseID(c, "id", "user")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	sessions, err := h.db.ListSessions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		resp = append(resp, sessionToResponse(&sessions[i]))
	}
	c.JSON(http.StatusOK, dto.SessionListResponse{Sessions: resp, Total: len(resp)})
}

// Last returns the user's most recently completed session.
func (h *SessionHandler) Last(c *gin.Context) {
	userID, ok := parseID(c, "id", "user")
	if !ok {
		return
	}

	s, err := h.db.LastSession(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no completed session"})
		return
	}
	c.JSON(http.StatusOK, sessionToResponse(s))
}

func (h *SessionHandler) Pause(c *gin.Context) {
	h.simple(c, queue.ActionSessionPause, "paused")
}

func (h *SessionHandler) Resume(c *gin.Context) {
	h.simple(c, queue.ActionSessionResume, "running")
}

func (h *SessionHandler) simple(c *gin.Context, action, status string) {
	id, ok := parseID(c, "id", "session")
	if !ok {
		return
	}
	if reply := control(c, h.ctl, h.timeout, queue.Command{Action: action, RunID: id}); reply == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "session_id": id})
}

// Stop closes the session and returns its summary.
func (h *SessionHandler) Stop(c *gin.Context) {
	id, ok := parseID(c, "id", "session")
	if !ok {
		return
	}
	reply := control(c, h.ctl, h.timeout, queue.Command{Action: queue.ActionSessionStop, RunID: id})
	if reply == nil {
		return
	}
	if reply.Session == nil {
		c.JSON(http.StatusOK, gin.H{"status": "stopped", "session_id": id})
		return
	}
	c.JSON(http.StatusOK, sessionToResponse(reply.Session))
}

// Delete removes a completed session, its metrics and its export.
func (h *SessionHandler) Delete(c *gin.Context) {
	s, ok := h.loadSession(c)
	if !ok {
		return
	}
	if s.EndedAt == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "session is still running"})
		return
	}

	if err := h.db.DeleteSession(c.Request.Context(), s.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.objects != nil {
		if err := h.objects.DeleteObject(c.Request.Context(), storage.SessionExportKey(s.ID)); err != nil {
			slog.Warn("delete session export", "session_id", s.ID, "error", err)
		}
	}
	c.Status(http.StatusNoContent)
}

// Metrics returns the session's bucket series reduced to at most
// max_points points.
func (h *SessionHandler) Metrics(c *gin.Context) {
	s, ok := h.loadSession(c)
	if !ok {
		return
	}

	maxPoints, err := strconv.Atoi(c.DefaultQuery("max_points", strconv.Itoa(focus.DefaultMaxPoints)))
	if err != nil || maxPoints < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_points must be an integer of at least 2"})
		return
	}

	metrics, err := h.db.ListMetrics(c.Request.Context(), s.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	reduced := focus.Downsample(metrics, maxPoints)
	points := make([]dto.MetricPoint, 0, len(reduced))
	for _, m := range reduced {
		points = append(points, dto.MetricPoint{
			BucketSec:    m.BucketSec,
			FocusScore:   m.FocusScore,
			EAR:          m.EAR,
			MAR:          m.MAR,
			HeadPitchDeg: m.HeadPitchDeg,
		})
	}
	c.JSON(http.StatusOK, dto.MetricSeriesResponse{SessionID: s.ID, Points: points, Total: len(metrics)})
}

// Export serves the archived JSON of a closed session.
func (h *SessionHandler) Export(c *gin.Context) {
	id, ok := parseID(c, "id", "session")
	if !ok {
		return
	}
	if h.objects == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session exports are disabled"})
		return
	}

	data, err := h.objects.GetObject(c.Request.Context(), storage.SessionExportKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "export not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (h *SessionHandler) loadSession(c *gin.Context) (*models.Session, bool) {
	id, ok := parseID(c, "id", "session")
	if !ok {
		return nil, false
	}
	s, err := h.db.GetSession(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return s, true
}

func sessionToResponse(s *models.Session) dto.SessionResponse {
	r := dto.SessionResponse{
		ID:              s.ID,
		UserID:          s.UserID,
		StartedAt:       s.StartedAt.Format(timeLayout),
		Running:         s.EndedAt == nil,
		BreaksCount:     s.BreaksCount,
		FocusAvg:        s.FocusAvg,
		EARAvg:          s.EARAvg,
		MARAvg:          s.MARAvg,
		HeadPitchAvgDeg: s.HeadPitchAvgDeg,
		Latitude:        s.Latitude,
		Longitude:       s.Longitude,
	}
	if s.EndedAt != nil {
		r.EndedAt = s.EndedAt.Format(timeLayout)
		r.DurationSeconds = int(s.EndedAt.Sub(s.StartedAt) / time.Second)
	}
	return r
}
