package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EnrollmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classguard",
		Name:      "enrollments_total",
		Help:      "Total number of enrollment attempts",
	}, []string{"outcome"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classguard",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected in class photos",
	})

	FacesRedacted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classguard",
		Name:      "faces_redacted_total",
		Help:      "Total number of faces obscured in output artifacts",
	})

	PhotosProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classguard",
		Name:      "photos_processed_total",
		Help:      "Total number of class photo requests by final status",
	}, []string{"status"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classguard",
		Name:      "inference_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classguard",
		Name:      "queue_depth",
		Help:      "Number of pending photo jobs in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classguard",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classguard",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
