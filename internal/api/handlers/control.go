package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/mindfocus/internal/queue"
)

// Controller reaches the worker over NATS.
type Controller interface {
	RequestControl(ctx context.Context, cmd queue.Command) (*queue.Reply, error)
	PublishLandmarks(ctx context.Context, runID string, data interface{}) error
}

// ObjectStore reads and removes archived objects.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

const timeLayout = time.RFC3339

func parseID(c *gin.Context, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return uuid.Nil, false
	}
	return id, true
}

// control sends cmd to the worker and writes the error response itself
// when the command failed. The reply is nil in that case.
func control(c *gin.Context, ctl Controller, timeout time.Duration, cmd queue.Command) *queue.Reply {
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	reply, err := ctl.RequestControl(ctx, cmd)
	if err != nil {
		slog.Warn("control request failed", "action", cmd.Action, "run_id", cmd.RunID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "focus worker unavailable"})
		return nil
	}
	if !reply.OK {
		c.JSON(replyStatus(reply.Code), gin.H{"error": reply.Error, "code": reply.Code})
		return nil
	}
	return reply
}

func replyStatus(code string) int {
	switch code {
	case queue.CodeNotFound:
		return http.StatusNotFound
	case queue.CodeConflict:
		return http.StatusConflict
	case queue.CodeInvalid:
		return http.StatusBadRequest
	case queue.CodeInsufficient:
		return http.StatusUnprocessableEntity
	case queue.CodeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
