// Package metrics holds the Prometheus collectors shared by the drivers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Commands counts commands sent to remote devices, by device address
	// and outcome (ok, error, noack)
	Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plume",
		Name:      "device_commands_total",
		Help:      "commands sent to lab hardware",
	}, []string{"addr", "outcome"})

	// Resends counts repeated transmissions of a command that was not acknowledged
	Resends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plume",
		Name:      "device_resends_total",
		Help:      "resends of unacknowledged commands",
	}, []string{"addr"})

	// Events counts decoded TDC events by channel
	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plume",
		Name:      "tdc_events_total",
		Help:      "time tagged events decoded from the TDC, by channel",
	}, []string{"channel"})

	// Shots counts completed ablation shots
	Shots = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "plume",
		Name:      "shots_total",
		Help:      "ablation shots completed",
	})

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(Commands, Resends, Events, Shots)
}

// Handler serves the collectors in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
