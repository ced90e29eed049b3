// Package metrics exposes Prometheus collectors for the event loop and
// broadcast fan-out.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_events_total",
		Help: "Inbound events processed by the coordinator, by type.",
	}, []string{"type"})

	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_broadcasts_total",
		Help: "Outbound frames attempted, by event name.",
	}, []string{"event"})

	ConnectionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parlor_connections_live",
		Help: "Currently registered connections.",
	})

	RoomsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parlor_rooms_live",
		Help: "Currently existing rooms.",
	})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
