package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/mindfocus/internal/config"
	"github.com/your-org/mindfocus/internal/models"
	"github.com/your-org/mindfocus/internal/observability"
	"github.com/your-org/mindfocus/internal/queue"
	"github.com/your-org/mindfocus/internal/session"
	"github.com/your-org/mindfocus/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting mindfocus worker",
		"db", cfg.Database.Driver,
		"consumer_workers", cfg.NATS.ConsumerWorkers,
		"flush_interval", cfg.Engine.FlushInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	var opts []session.Option
	var archive *storage.Archive
	if cfg.MinIO.Enabled {
		archive, err = storage.NewArchive(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		opts = append(opts, session.WithArchiver(archive))
	}

	mgr := session.NewManager(db, producer, cfg.Engine, opts...)

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	if err := consumer.ServeControl(ctx, mgr.HandleCommand); err != nil {
		slog.Error("start control subscriber", "error", err)
		os.Exit(1)
	}

	err = consumer.ConsumeLandmarks(ctx, "focus-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var frame models.LandmarkFrame
		if err := json.Unmarshal(msg.Data(), &frame); err != nil {
			return fmt.Errorf("unmarshal landmark frame: %w", err)
		}
		if frame.RunID == uuid.Nil {
			id, err := uuid.Parse(strings.TrimPrefix(msg.Subject(), queue.LandmarksSubjectBase+"."))
			if err != nil {
				return fmt.Errorf("frame without run id on %s", msg.Subject())
			}
			frame.RunID = id
		}
		if err := mgr.HandleFrame(frame); err != nil {
			return fmt.Errorf("run %s: %w", frame.RunID, err)
		}
		return nil
	}, cfg.NATS.ConsumerWorkers)
	if err != nil {
		slog.Error("start landmark consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprintf(w, `{"status":"ok","active_runs":%d}`, mgr.ActiveCount())
		})
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		slog.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	if archive != nil {
		go expireExports(ctx, archive, cfg.Engine.ExportRetention)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...", "active_runs", mgr.ActiveCount())

	// Close open sessions before the connections they write through go away.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Engine.StopTimeout)
	defer stopCancel()
	if err := mgr.StopAll(stopCtx); err != nil {
		slog.Error("stop runs", "error", err)
	}
	cancel()

	slog.Info("worker stopped")
}

// expireExports removes session exports older than retention, once at
// startup and then every hour.
func expireExports(ctx context.Context, archive *storage.Archive, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := archive.Expire(ctx, storage.SessionExportPrefix, time.Now().Add(-retention))
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("expire session exports", "removed", n, "error", err)
		} else if n > 0 {
			slog.Info("removed expired session exports", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
