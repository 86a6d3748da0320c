package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/mindfocus/internal/storage"
)

// Pinger reports broker connectivity.
type Pinger interface {
	Ping() error
}

// ClientCounter reports live WebSocket clients.
type ClientCounter interface {
	ClientCount() int
}

type SystemHandler struct {
	db      storage.Store
	objects ObjectStore // optional
	nats    Pinger
	clients ClientCounter
}

func NewSystemHandler(db storage.Store, objects ObjectStore, nats Pinger, clients ClientCounter) *SystemHandler {
	return &SystemHandler{db: db, objects: objects, nats: nats, clients: clients}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": h.clients.ClientCount()})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.objects != nil {
		if err := h.objects.Ping(ctx); err != nil {
			checks["minio"] = err.Error()
			healthy = false
		} else {
			checks["minio"] = "ok"
		}
	}

	if err := h.nats.Ping(); err != nil {
		checks["nats"] = err.Error()
		healthy = false
	} else {
		checks["nats"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
