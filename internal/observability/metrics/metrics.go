// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_gateway"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsSuccess prometheus.Counter
	SessionsFailed  prometheus.Counter
	SessionDuration prometheus.Histogram

	// Utterance metrics
	UtterancesCreated   prometheus.Counter
	UtterancesCompleted prometheus.Counter
	UtterancesDropped   *prometheus.CounterVec

	// Delivery metrics
	DeliveriesPartial prometheus.Counter
	DeliveriesFinal   prometheus.Counter

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter
	RingBufferBytes     prometheus.Gauge

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// STT metrics
	STTLatency        *prometheus.HistogramVec
	STTErrors         *prometheus.CounterVec
	STTUtteranceCount prometheus.Counter

	// Dispatch/delivery metrics
	DispatcherQueueDepth prometheus.Gauge
	DeliveryPendingHoles prometheus.Counter

	// Backpressure metrics
	SegmentLimitExceeded *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of client sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active sessions",
		}),
		SessionsSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_success_total",
			Help:      "Total number of sessions that completed drain cleanly",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions that ended with a drain deadline",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of client sessions in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		UtterancesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_created_total",
			Help:      "Total number of utterances opened",
		}),
		UtterancesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_completed_total",
			Help:      "Total number of utterances completed with a final",
		}),
		UtterancesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_dropped_total",
			Help:      "Total number of utterances dropped without a final",
		}, []string{"reason"}),

		DeliveriesPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_partial_total",
			Help:      "Total number of partial deliveries released to clients",
		}),
		DeliveriesFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_final_total",
			Help:      "Total number of final deliveries released to clients",
		}),

		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received from clients",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio chunks received from clients",
		}),
		RingBufferBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ring_buffer_bytes",
			Help:      "Approximate total bytes held across all session ring buffers",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		STTLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Speech-to-text batch call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"provider"}),
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT batch call errors",
		}, []string{"provider"}),
		STTUtteranceCount: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_utterances_total",
			Help:      "Total number of utterances dispatched to STT",
		}),

		DispatcherQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatcher_queue_depth",
			Help:      "Current depth of the global STT dispatch queue",
		}),
		DeliveryPendingHoles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_pending_holes_skipped_total",
			Help:      "Total number of delivery sequence holes skipped after a drain deadline",
		}),

		SegmentLimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_limit_exceeded_total",
			Help:      "Total number of times a per-utterance backpressure limit was exceeded",
		}, []string{"limit_type"}),

		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request handling duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"route", "method"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(cleanDrain bool, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
	if cleanDrain {
		m.SessionsSuccess.Inc()
	} else {
		m.SessionsFailed.Inc()
	}
}

// RecordUtteranceCreated records an utterance opening.
func (m *Metrics) RecordUtteranceCreated() {
	m.UtterancesCreated.Inc()
}

// RecordUtteranceCompleted records an utterance closing with a final.
func (m *Metrics) RecordUtteranceCompleted() {
	m.UtterancesCompleted.Inc()
}

// RecordUtteranceDropped records an utterance abandoned without a final.
func (m *Metrics) RecordUtteranceDropped(reason string) {
	m.UtterancesDropped.WithLabelValues(reason).Inc()
}

// RecordDeliveryPartial records a partial delivery released to a client.
func (m *Metrics) RecordDeliveryPartial() {
	m.DeliveriesPartial.Inc()
}

// RecordDeliveryFinal records a final delivery released to a client.
func (m *Metrics) RecordDeliveryFinal() {
	m.DeliveriesFinal.Inc()
}

// RecordAudioReceived records audio bytes and one chunk received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// AddRingBufferBytes adjusts the approximate total ring buffer byte gauge
// by delta (positive on append, negative on truncate).
func (m *Metrics) AddRingBufferBytes(delta int64) {
	m.RingBufferBytes.Add(float64(delta))
}

// SetDispatcherQueueDepth sets the current global dispatch queue depth.
func (m *Metrics) SetDispatcherQueueDepth(n int) {
	m.DispatcherQueueDepth.Set(float64(n))
}

// RecordDeliveryHolesSkipped records n delivery sequence holes skipped
// after a drain deadline.
func (m *Metrics) RecordDeliveryHolesSkipped(n int) {
	if n <= 0 {
		return
	}
	m.DeliveryPendingHoles.Add(float64(n))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSTTBatch records one STT batch call's outcome and latency.
func (m *Metrics) RecordSTTBatch(provider string, err error, latencySeconds float64, utteranceCount int) {
	m.STTLatency.WithLabelValues(provider).Observe(latencySeconds)
	m.STTUtteranceCount.Add(float64(utteranceCount))
	if err != nil {
		m.STTErrors.WithLabelValues(provider).Inc()
	}
}

// RecordLimitExceeded records when a segment limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.SegmentLimitExceeded.WithLabelValues(limitType).Inc()
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(route, method, status string, latencySeconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(latencySeconds)
}
