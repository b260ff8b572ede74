package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "machinewatch"

// Connection state gauge values.
const (
	StateDisconnected = 0
	StateConnecting   = 1
	StateConnected    = 2
)

// Set holds every metric the monitor exports.
type Set struct {
	UpdatesReceived prometheus.Counter
	PayloadsDropped prometheus.Counter
	Connects        prometheus.Counter
	Reconnects      prometheus.Counter
	ConnectionState prometheus.Gauge
}

// New registers the full metric set on reg.
func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		UpdatesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_received_total",
			Help:      "Machine update events stored in the log buffer.",
		}),
		PayloadsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_dropped_total",
			Help:      "Inbound payloads dropped for missing or malformed data envelopes.",
		}),
		Connects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Successful hub handshakes initiated by the user.",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Successful automatic reconnects after a dropped connection.",
		}),
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state: 0 disconnected, 1 connecting, 2 connected.",
		}),
	}
}

// Handler returns the HTTP handler exposing reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
