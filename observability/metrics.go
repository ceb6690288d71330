package observability

import (
	"net/http"
	"whiteboard-relay/contract"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay collectors. Each instance owns its registry so
// several relays (one per test) can live in the same process.
type Metrics struct {
	registry *prometheus.Registry

	connections     prometheus.Gauge
	rooms           prometheus.GaugeFunc
	framesReceived  *prometheus.CounterVec
	deliveries      prometheus.Counter
	deliveryFailure prometheus.Counter
}

// NewMetrics builds the collectors. The active rooms gauge is read from
// registry at scrape time.
func NewMetrics(registry contract.IRegistry) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Connections currently joined to a room.",
		}),
		rooms: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "relay_active_rooms",
			Help: "Rooms with at least one member.",
		}, func() float64 {
			rooms, _ := registry.Stats()
			return float64(rooms)
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Inbound frames by decoding outcome.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Frames successfully sent to a room member.",
		}),
		deliveryFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_delivery_failures_total",
			Help: "Sends that failed and dropped the target connection.",
		}),
	}

	m.registry.MustRegister(
		m.connections,
		m.rooms,
		m.framesReceived,
		m.deliveries,
		m.deliveryFailure,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ConnectionOpened() { m.connections.Inc() }

func (m *Metrics) ConnectionClosed() { m.connections.Dec() }

func (m *Metrics) FrameReceived(raw bool) {
	kind := "json"
	if raw {
		kind = "raw"
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) Delivered() { m.deliveries.Inc() }

func (m *Metrics) DeliveryFailed() { m.deliveryFailure.Inc() }

// FramesReceived returns the inbound frame counter for kind ("json" or "raw").
func (m *Metrics) FramesReceived(kind string) prometheus.Counter {
	return m.framesReceived.WithLabelValues(kind)
}

// ActiveRooms returns the gauge exported as relay_active_rooms.
func (m *Metrics) ActiveRooms() prometheus.Collector { return m.rooms }

// Handler exposes the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
