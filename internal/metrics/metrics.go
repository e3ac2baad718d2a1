// Package metrics registers the daemon's Prometheus collectors, grounded
// on the pack's own metrics package shape: a flat var block of collectors
// registered once in init, plus a Handler for mounting at /metrics.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linux-automation/tacd/internal/broker"
)

var (
	// PublishTotal counts topic publishes observed at the broker,
	// labeled by "class": the second path segment (dut, tac, iobus, ...).
	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tacd_topic_publishes_total",
			Help: "Total number of topic publishes observed by class",
		},
		[]string{"class"},
	)

	// SupervisorLoopJitterSeconds observes how far each DUT power
	// supervisor tick landed from its nominal period.
	SupervisorLoopJitterSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tacd_supervisor_loop_jitter_seconds",
			Help:    "Deviation of the supervisor tick interval from its nominal period",
			Buckets: prometheus.LinearBuckets(-0.0005, 0.0001, 11),
		},
	)

	// WebsocketClients tracks the number of connections currently open
	// on the push bus.
	WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tacd_websocket_clients",
			Help: "Number of WebSocket push bus clients currently connected",
		},
	)
)

func init() {
	prometheus.MustRegister(PublishTotal)
	prometheus.MustRegister(SupervisorLoopJitterSeconds)
	prometheus.MustRegister(WebsocketClients)
}

// Handler returns the Prometheus scrape handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSupervisorJitter is wired onto supervisor.Supervisor.JitterObserver.
func ObserveSupervisorJitter(d time.Duration) {
	SupervisorLoopJitterSeconds.Observe(d.Seconds())
}

// SetWebsocketClients updates the connected-client gauge; wireup polls
// wsbus.Hub.ClientCount on a ticker and feeds the result here.
func SetWebsocketClients(n int) {
	WebsocketClients.Set(float64(n))
}

// classOf extracts the metric label from a topic path such as
// "/v1/dut/powered" -> "dut".
func classOf(path string) string {
	trimmed := strings.TrimPrefix(path, "/v1/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

// Instrument subscribes to every path currently registered on b and
// increments PublishTotal on each delivery (including the initial
// retained-value delivery Subscribe performs). Call once, after wire-up
// has finished registering every topic.
func Instrument(b *broker.Broker) {
	for _, path := range b.Paths() {
		class := classOf(path)
		_, _ = b.Subscribe(path, func(_ []byte) {
			PublishTotal.WithLabelValues(class).Inc()
		})
	}
}
