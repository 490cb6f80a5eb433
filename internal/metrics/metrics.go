package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scribbo"

const (
	CaptureSucceeded = "captured"
	CaptureFailed    = "failed"
)

// Metrics groups the server collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	Messages          *prometheus.CounterVec
	Captures          *prometheus.CounterVec
	BroadcastDrops    prometheus.Counter
}

// New - creates the collectors on a fresh registry together with the Go runtime collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	that := &Metrics{
		registry: registry,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open client connections.",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by type.",
		}, []string{"type"}),
		Captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Finished drawings by outcome.",
		}, []string{"result"}),
		BroadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_drops_total",
			Help:      "Peers disconnected because their outbound queue was full or closed.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		that.ConnectionsActive,
		that.Messages,
		that.Captures,
		that.BroadcastDrops,
	)

	return that
}

// ObserveCapture - counts a finished drawing.
func (that *Metrics) ObserveCapture(captured bool) {
	if captured {
		that.Captures.WithLabelValues(CaptureSucceeded).Inc()
		return
	}

	that.Captures.WithLabelValues(CaptureFailed).Inc()
}

// Handler - exposition handler for the registry.
func (that *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(that.registry, promhttp.HandlerOpts{Registry: that.registry})
}
