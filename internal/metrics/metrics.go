// Package metrics exposes pipeline counters for Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "geo_insight_"

	ResultAccepted  = "accepted"
	ResultRejected  = "rejected"
	ResultFiltered  = "filtered"
	ResultDuplicate = "duplicate"
	ResultNaN       = "nan"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	inboundMessages   *prometheus.CounterVec
	malformedFrames   *prometheus.CounterVec
	pointResults      *prometheus.CounterVec
	reconnects        *prometheus.CounterVec
	connectionStatus  *prometheus.GaugeVec
	authLatency       *prometheus.HistogramVec
	mappingSaves      *prometheus.CounterVec
	previewPointCount *prometheus.GaugeVec
)

// Init registers pipeline metrics with the default registerer.
func Init() {
	registerOnce.Do(func() {
		inboundMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transport_messages_total",
				Help: "Inbound transport messages by dataset and type",
			},
			[]string{"dataset", "type"},
		)
		malformedFrames = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transport_malformed_total",
				Help: "Inbound frames dropped because they could not be decoded",
			},
			[]string{"dataset"},
		)
		pointResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "points_total",
				Help: "Normalized points by buffer outcome",
			},
			[]string{"dataset", "result"},
		)
		reconnects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transport_reconnects_total",
				Help: "Reconnect attempts scheduled",
			},
			[]string{"dataset"},
		)
		connectionStatus = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "transport_status",
				Help: "1 for the current connection status of a dataset session",
			},
			[]string{"dataset", "status"},
		)
		authLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "transport_auth_seconds",
				Help:    "Time from transport open to auth_success",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"dataset"},
		)
		mappingSaves = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mapping_saves_total",
				Help: "Mapping configuration saves by result",
			},
			[]string{"result"},
		)
		previewPointCount = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "configurator_preview_points",
				Help: "Points produced by the last configurator preview",
			},
			[]string{"dataset"},
		)

		prometheus.MustRegister(
			inboundMessages,
			malformedFrames,
			pointResults,
			reconnects,
			connectionStatus,
			authLatency,
			mappingSaves,
			previewPointCount,
		)
	})
}

// IncInbound counts one decoded inbound message.
func IncInbound(dataset, msgType string) {
	if msgType == "" {
		msgType = "unknown"
	}
	if inboundMessages != nil {
		inboundMessages.WithLabelValues(dataset, msgType).Inc()
	}
}

// IncMalformed counts one dropped frame.
func IncMalformed(dataset string) {
	if malformedFrames != nil {
		malformedFrames.WithLabelValues(dataset).Inc()
	}
}

// IncPoint counts a point outcome.
func IncPoint(dataset, result string) {
	if result == "" {
		return
	}
	if pointResults != nil {
		pointResults.WithLabelValues(dataset, result).Inc()
	}
}

// IncReconnect counts a scheduled reconnect.
func IncReconnect(dataset string) {
	if reconnects != nil {
		reconnects.WithLabelValues(dataset).Inc()
	}
}

// SetStatus marks status as the current one for dataset.
func SetStatus(dataset, status string, all []string) {
	if connectionStatus == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == status {
			v = 1
		}
		connectionStatus.WithLabelValues(dataset, s).Set(v)
	}
}

// ObserveAuth records handshake latency.
func ObserveAuth(dataset string, d time.Duration) {
	if d < 0 {
		return
	}
	if authLatency != nil {
		authLatency.WithLabelValues(dataset).Observe(d.Seconds())
	}
}

// IncMappingSave counts a configurator save.
func IncMappingSave(result string) {
	if result == "" {
		return
	}
	if mappingSaves != nil {
		mappingSaves.WithLabelValues(result).Inc()
	}
}

// SetPreviewPoints records the size of the last preview.
func SetPreviewPoints(dataset string, n int) {
	if previewPointCount != nil {
		previewPointCount.WithLabelValues(dataset).Set(float64(n))
	}
}
