package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var publishedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "notify_notifications_published_total",
	Help: "Notifications durably created through the publish boundary.",
})
