package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/mindfocus/internal/api/handlers"
	"github.com/your-org/mindfocus/internal/api/ws"
	"github.com/your-org/mindfocus/internal/auth"
	"github.com/your-org/mindfocus/internal/storage"
)

// Broker is what the API needs from NATS.
type Broker interface {
	handlers.Controller
	handlers.Pinger
}

type RouterConfig struct {
	APIKey string
	DB     storage.Store
	// Objects is nil when MinIO is disabled.
	Objects             handlers.ObjectStore
	Broker              Broker
	Hub                 *ws.Hub
	ControlTimeout      time.Duration
	CalibrationDuration time.Duration
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "X-API-Key"},
		MaxAge:          12 * time.Hour,
	}))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Objects, cfg.Broker, cfg.Hub)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Users, settings, baselines
	userH := handlers.NewUserHandler(cfg.DB, cfg.Broker, cfg.ControlTimeout)
	v1.POST("/users", userH.Create)
	v1.GET("/users/:id", userH.Get)
	v1.GET("/users/:id/settings", userH.GetSettings)
	v1.PUT("/users/:id/settings", userH.UpdateSettings)
	v1.GET("/users/:id/baseline", userH.GetBaseline)

	// Calibrations
	calH := handlers.NewCalibrationHandler(cfg.Broker, cfg.ControlTimeout, cfg.CalibrationDuration)
	v1.POST("/users/:id/calibrations", calH.Start)
	v1.POST("/calibrations/:id/pause", calH.Pause)
	v1.POST("/calibrations/:id/resume", calH.Resume)
	v1.POST("/calibrations/:id/stop", calH.Stop)

	// Sessions
	sessH := handlers.NewSessionHandler(cfg.DB, cfg.Objects, cfg.Broker, cfg.ControlTimeout)
	v1.POST("/users/:id/sessions", sessH.Start)
	v1.GET("/users/:id/sessions", sessH.List)
	v1.GET("/users/:id/sessions/last", sessH.Last)
	v1.GET("/sessions/:id", sessH.Get)
	v1.POST("/sessions/:id/pause", sessH.Pause)
	v1.POST("/sessions/:id/resume", sessH.Resume)
	v1.POST("/sessions/:id/stop", sessH.Stop)
	v1.DELETE("/sessions/:id", sessH.Delete)
	v1.GET("/sessions/:id/metrics", sessH.Metrics)
	v1.GET("/sessions/:id/export", sessH.Export)

	// Frames from devices without a NATS connection
	frameH := handlers.NewFrameHandler(cfg.Broker)
	v1.POST("/runs/:id/frames", frameH.Ingest)

	return r
}
