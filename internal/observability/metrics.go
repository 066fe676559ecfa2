package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorguard",
		Name:      "frames_processed_total",
		Help:      "Total number of camera frames consumed, by workflow and read outcome",
	}, []string{"workflow", "outcome"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorguard",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	}, []string{"workflow"})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorguard",
		Name:      "decisions_total",
		Help:      "Total number of door decisions, by kind",
	}, []string{"kind"})

	RecognitionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorguard",
		Name:      "recognition_outcomes_total",
		Help:      "Terminal state of each door-open attempt",
	}, []string{"state"})

	EnrollmentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorguard",
		Name:      "enrollment_outcomes_total",
		Help:      "Outcome of each enrollment run",
	}, []string{"outcome"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "doorguard",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	GallerySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "doorguard",
		Name:      "gallery_encodings",
		Help:      "Number of encodings in the active gallery",
	})

	AuditFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorguard",
		Name:      "audit_failures_total",
		Help:      "Failures inside the audit path, by stage",
	}, []string{"stage"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorguard",
		Name:      "notifications_sent_total",
		Help:      "Notifications handed to publishers, by topic and result",
	}, []string{"topic", "result"})

	CameraRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "doorguard",
		Name:      "camera_restarts_total",
		Help:      "Number of times the capture process was restarted",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "doorguard",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "doorguard",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
