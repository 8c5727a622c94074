package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PostsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goalbot_posts_ingested_total",
		Help: "The total number of candidate posts received from feeds",
	}, []string{"source"})

	FeedPollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goalbot_feed_poll_errors_total",
		Help: "The total number of failed feed polls",
	}, []string{"source"})

	PipelineOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goalbot_pipeline_outcomes_total",
		Help: "Events by terminal pipeline state",
	}, []string{"state"})

	EventsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "goalbot_events_in_flight",
		Help: "Events currently resolving or waiting for a retry",
	})

	ResolutionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goalbot_resolution_attempts_total",
		Help: "Video resolution attempts by host strategy and result",
	}, []string{"strategy", "result"})

	ResolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "goalbot_resolution_duration_seconds",
		Help:    "Duration of a single video resolution attempt",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"strategy"})

	TimeToEmitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "goalbot_time_to_emit_seconds",
		Help:    "Time from post creation to notification",
		Buckets: []float64{5, 10, 20, 30, 60, 120, 300, 600},
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goalbot_notifications_total",
		Help: "Notifications by transport and status",
	}, []string{"transport", "status"})

	HistorySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "goalbot_history_keys",
		Help: "Number of dedup keys held in the history index",
	})

	HistoryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goalbot_history_errors_total",
		Help: "Failed history backend operations",
	}, []string{"backend"})
)
