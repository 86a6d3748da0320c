package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/mindfocus/internal/models"
	"github.com/your-org/mindfocus/internal/queue"
	"github.com/your-org/mindfocus/internal/storage"
	"github.com/your-org/mindfocus/pkg/dto"
)

type UserHandler struct {
	db      storage.Store
	ctl     Controller
	timeout time.Duration
}

func NewUserHandler(db storage.Store, ctl Controller, timeout time.Duration) *UserHandler {
	return &UserHandler{db: db, ctl: ctl, timeout: timeout}
}

func (h *UserHandler) Create(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.db.CreateUser(c.Request.Context(), req.Email, req.DisplayName)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, userToResponse(u))
}

func (h *UserHandler) Get(c *gin.Context) {
	u, ok := h.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, userToResponse(u))
}

// GetSettings returns the saved settings, or the defaults for a user who
// never saved any.
func (h *UserHandler) GetSettings(c *gin.Context) {
	u, ok := h.loadUser(c)
	if !ok {
		return
	}

	st, err := h.db.GetSettings(c.Request.Context(), u.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if st == nil {
		d := models.DefaultSettings(u.ID)
		st = &d
	}
	c.JSON(http.StatusOK, settingsToResponse(st, true))
}

// UpdateSettings persists the changed switches and hands the result to the
// user's running session, if there is one.
func (h *UserHandler) UpdateSettings(c *gin.Context) {
	u, ok := h.loadUser(c)
	if !ok {
		return
	}

	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.db.GetSettings(c.Request.Context(), u.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if st == nil {
		d := models.DefaultSettings(u.ID)
		st = &d
	}
	applyUpdate(st, req)

	if err := h.db.UpsertSettings(c.Request.Context(), st); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// The settings are saved either way; a session started later reads them.
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	applied := true
	reply, err := h.ctl.RequestControl(ctx, queue.Command{
		Action:   queue.ActionSettingsApply,
		UserID:   u.ID,
		Settings: st,
	})
	if err != nil || !reply.OK {
		applied = false
		slog.Warn("settings not applied to running session", "user_id", u.ID, "error", err)
	}

	c.JSON(http.StatusOK, settingsToResponse(st, applied))
}

func (h *UserHandler) GetBaseline(c *gin.Context) {
	u, ok := h.loadUser(c)
	if !ok {
		return
	}

	b, err := h.db.GetBaseline(c.Request.Context(), u.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user is not calibrated"})
		return
	}
	c.JSON(http.StatusOK, baselineToResponse(b))
}

func (h *UserHandler) loadUser(c *gin.Context) (*models.User, bool) {
	id, ok := parseID(c, "id", "user")
	if !ok {
		return nil, false
	}
	u, err := h.db.GetUser(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil, false
	}
	return u, true
}

func applyUpdate(st *models.Settings, req dto.UpdateSettingsRequest) {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&st.CameraMonitoringEnabled, req.CameraMonitoringEnabled)
	set(&st.LowFocusAlertsEnabled, req.LowFocusAlertsEnabled)
	set(&st.EyesClosedAlertsEnabled, req.EyesClosedAlertsEnabled)
	set(&st.BlinkAlertsEnabled, req.BlinkAlertsEnabled)
	set(&st.HeadPoseAlertsEnabled, req.HeadPoseAlertsEnabled)
	set(&st.YawnAlertsEnabled, req.YawnAlertsEnabled)
	set(&st.FaceLostAlertsEnabled, req.FaceLostAlertsEnabled)
	set(&st.GPSEnabled, req.GPSEnabled)
}

func userToResponse(u *models.User) dto.UserResponse {
	return dto.UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt.Format(timeLayout),
	}
}

func settingsToResponse(st *models.Settings, applied bool) dto.SettingsResponse {
	r := dto.SettingsResponse{
		UserID:                  st.UserID,
		CameraMonitoringEnabled: st.CameraMonitoringEnabled,
		LowFocusAlertsEnabled:   st.LowFocusAlertsEnabled,
		EyesClosedAlertsEnabled: st.EyesClosedAlertsEnabled,
		BlinkAlertsEnabled:      st.BlinkAlertsEnabled,
		HeadPoseAlertsEnabled:   st.HeadPoseAlertsEnabled,
		YawnAlertsEnabled:       st.YawnAlertsEnabled,
		FaceLostAlertsEnabled:   st.FaceLostAlertsEnabled,
		GPSEnabled:              st.GPSEnabled,
		Applied:                 applied,
	}
	if !st.UpdatedAt.IsZero() {
		r.UpdatedAt = st.UpdatedAt.Format(timeLayout)
	}
	return r
}

func baselineToResponse(b *models.Baseline) dto.BaselineResponse {
	return dto.BaselineResponse{
		ID:               b.ID,
		UserID:           b.UserID,
		EARMean:          b.EARMean,
		MARMean:          b.MARMean,
		HeadPitchMeanDeg: b.HeadPitchMeanDeg,
		BlinkPerMin:      b.BlinkPerMin,
		NoiseDBMean:      b.NoiseDBMean,
		CreatedAt:        b.CreatedAt.Format(timeLayout),
	}
}
