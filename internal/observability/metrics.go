package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindfocus",
		Name:      "frames_processed_total",
		Help:      "Total number of landmark frames processed",
	}, []string{"kind"})

	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mindfocus",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped because a run's inbox was full",
	})

	FramesWithoutFace = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mindfocus",
		Name:      "frames_without_face_total",
		Help:      "Frames in which no face was detected",
	})

	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindfocus",
		Name:      "alerts_raised_total",
		Help:      "Alerts raised by type",
	}, []string{"type"})

	HapticPulses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mindfocus",
		Name:      "haptic_pulses_total",
		Help:      "Haptic pulses sent to devices",
	})

	FocusScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mindfocus",
		Name:      "focus_score",
		Help:      "Distribution of computed focus scores",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	ActiveRuns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mindfocus",
		Name:      "active_runs",
		Help:      "Number of running sessions and calibrations",
	}, []string{"kind"})

	MetricFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindfocus",
		Name:      "metric_flush_total",
		Help:      "Metric bucket flushes by result",
	}, []string{"result"})

	MetricRowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mindfocus",
		Name:      "metric_rows_written_total",
		Help:      "Metric bucket rows written to storage",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mindfocus",
		Name:      "queue_depth",
		Help:      "Number of pending landmark frames in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mindfocus",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mindfocus",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
