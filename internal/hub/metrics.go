package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notify_sessions_active",
		Help: "Number of live push sessions.",
	})

	deliveredCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_events_delivered_total",
		Help: "Push events delivered to session buffers.",
	})

	droppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_events_dropped_total",
		Help: "Push events dropped because a session buffer was full.",
	})
)
