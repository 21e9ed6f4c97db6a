package mqttmsgr

import (
	"github.com/RoanBrand/mqttmsgr/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "mqttmsgr"

type metrics struct {
	packetsReceived *prometheus.CounterVec
	packetsSent     *prometheus.CounterVec
	decodeErrors    prometheus.Counter
	eventsTotal     *prometheus.CounterVec
	reconnects      prometheus.Counter
	connected       prometheus.Gauge
	queueDepth      prometheus.Gauge
	pendingAcks     prometheus.Gauge
}

// newMetrics registers the client's collectors with reg, labelled with
// clientID so several clients can share one registry. A nil reg creates
// working collectors that are not exported anywhere.
func newMetrics(reg prometheus.Registerer, clientID string) *metrics {
	if reg != nil {
		reg = prometheus.WrapRegistererWith(prometheus.Labels{"client": clientID}, reg)
	}
	factory := promauto.With(reg)

	return &metrics{
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_received_total",
			Help:      "Control packets received from the broker by type",
		}, []string{"type"}),

		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_sent_total",
			Help:      "Control packets sent to the broker by type",
		}, []string{"type"}),

		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_errors_total",
			Help:      "Inbound frames dropped because they could not be decoded",
		}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Domain events parsed from inbound publishes by kind",
		}, []string{"kind"}),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconnects_total",
			Help:      "Automatic reconnect attempts scheduled",
		}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected",
			Help:      "1 while the broker connection is established",
		}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "outbound_queue_depth",
			Help:      "Messages waiting for a connection",
		}),

		pendingAcks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_acks",
			Help:      "QoS 1 PUBLISH and SUBSCRIBE packets awaiting acknowledgement",
		}),
	}
}

func (m *metrics) sent(controlType uint8) {
	m.packetsSent.WithLabelValues(model.Name(controlType)).Inc()
}

func (m *metrics) received(controlType uint8) {
	m.packetsReceived.WithLabelValues(model.Name(controlType)).Inc()
}
