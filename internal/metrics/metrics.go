// Package metrics exposes the server's Prometheus instrumentation. The
// admin HTTP endpoint serves these under /metrics.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	openConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "transport",
			Name:      "open_connections",
			Help:      "Connections that have completed the handshake.",
		},
	)
	framesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "transport",
			Name:      "frames_read_total",
			Help:      "Inbound frames by message type.",
		},
		[]string{"type"},
	)
	framesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "transport",
			Name:      "frames_written_total",
			Help:      "Outbound frames by message type.",
		},
		[]string{"type"},
	)
	protocolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "transport",
			Name:      "protocol_errors_total",
			Help:      "Closing Error frames sent, by error code.",
		},
		[]string{"code"},
	)
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Parsed client requests by verb.",
		},
		[]string{"verb"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			openConnections, framesRead, framesWritten, protocolErrors, requests,
		)
	})
}

func ConnOpened() {
	RegisterMetrics()
	openConnections.Inc()
}

func ConnClosed() {
	RegisterMetrics()
	openConnections.Dec()
}

func RecordFrameRead(messageType string) {
	RegisterMetrics()
	framesRead.WithLabelValues(messageType).Inc()
}

func RecordFrameWritten(messageType string) {
	RegisterMetrics()
	framesWritten.WithLabelValues(messageType).Inc()
}

func RecordProtocolError(code byte) {
	RegisterMetrics()
	protocolErrors.WithLabelValues(strconv.Itoa(int(code))).Inc()
}

func RecordRequest(verb string) {
	RegisterMetrics()
	requests.WithLabelValues(verb).Inc()
}
