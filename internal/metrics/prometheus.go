// Package metrics registers and records Prometheus metrics for all assessment
// subsystems including sequence decoding, test dispatch, the HTTP assessment
// API, result batching and MQTT publishing.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SequencesDecoded       *prometheus.CounterVec
	BitsDecoded            prometheus.Counter
	DecodeErrors           *prometheus.CounterVec
	TestInvocations        *prometheus.CounterVec
	TestDuration           *prometheus.HistogramVec
	DispatchDuration       prometheus.Histogram
	RunsStarted            prometheus.Counter
	RunsCompleted          *prometheus.CounterVec
	RunActive              prometheus.Gauge
	APIRequests            *prometheus.CounterVec
	APILatency             prometheus.Histogram
	APIRateLimited         prometheus.Counter
	ResultBatches          *prometheus.CounterVec
	ResultBatchSize        prometheus.Histogram
	CollectorPending       prometheus.Gauge
	CollectorFlushDuration prometheus.Histogram
	ResultsDropped         *prometheus.CounterVec
	MQTTConnected          prometheus.Gauge
	MQTTConnects           prometheus.Counter
	MQTTReconnects         prometheus.Counter
	MQTTDisconnects        prometheus.Counter
	MQTTPublished          prometheus.Counter
	MQTTPublishFailures    prometheus.Counter

	registered        []prometheus.Collector
	metricsMu         sync.RWMutex
	currentRegisterer prometheus.Registerer = prometheus.DefaultRegisterer
)

func init() {
	resetMetrics(prometheus.DefaultRegisterer)
}

// SetRegisterer sets a new registerer and reinitializes all metrics.
// It returns the previous registerer so it can be restored later.
func SetRegisterer(registerer prometheus.Registerer) prometheus.Registerer {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	previous := currentRegisterer
	if currentRegisterer != nil {
		unregisterAll(currentRegisterer)
	}

	currentRegisterer = registerer
	initializeMetrics(registerer)

	return previous
}

// ResetForTesting reconfigures all metric collectors against the provided registerer.
// It unregisters the existing metrics from the previous registerer to prevent
// duplicate registrations when invoked repeatedly.
func ResetForTesting(registerer prometheus.Registerer) {
	resetMetrics(registerer)
}

func resetMetrics(registerer prometheus.Registerer) {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	if currentRegisterer != nil {
		unregisterAll(currentRegisterer)
	}

	currentRegisterer = registerer
	initializeMetrics(registerer)
}

// initializeMetrics creates all metrics using the provided registerer.
// This function must be called while holding metricsMu.
func initializeMetrics(registerer prometheus.Registerer) {
	factory := promauto.With(registerer)

	SequencesDecoded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assess_sequences_decoded_total",
			Help: "Total number of complete bit sequences produced by a source",
		},
		[]string{"source"},
	)

	BitsDecoded = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "assess_bits_decoded_total",
			Help: "Total number of bits decoded into sequences",
		},
	)

	DecodeErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assess_decode_errors_total",
			Help: "Total number of fatal decode errors by kind",
		},
		[]string{"kind"},
	)

	TestInvocations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assess_test_invocations_total",
			Help: "Total number of statistical test invocations",
		},
		[]string{"test", "outcome"},
	)

	TestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assess_test_duration_seconds",
			Help:    "Time taken by a single statistical test invocation",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
		},
		[]string{"test"},
	)

	DispatchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assess_dispatch_duration_seconds",
			Help:    "Time taken to dispatch every enabled test on one sequence",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
	)

	RunsStarted = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "assess_runs_started_total",
			Help: "Total number of assessment runs started",
		},
	)

	RunsCompleted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assess_runs_completed_total",
			Help: "Total number of assessment runs finished, by status",
		},
		[]string{"status"},
	)

	RunActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "assess_runs_active",
			Help: "Number of assessment runs currently in progress",
		},
	)

	APIRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assess_api_requests_total",
			Help: "Total HTTP requests served by the assessment API, by status code",
		},
		[]string{"code"},
	)

	APILatency = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assess_api_request_duration_seconds",
			Help:    "Latency of assessment API requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
	)

	APIRateLimited = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "assess_api_rate_limited_total",
			Help: "Total assessment API requests rejected by the rate limiter",
		},
	)

	ResultBatches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assess_result_batches_total",
			Help: "Total result batches handed to the publisher, by status",
		},
		[]string{"status"},
	)

	ResultBatchSize = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assess_result_batch_size",
			Help:    "Number of results per published batch",
			Buckets: prometheus.LinearBuckets(10, 10, 20),
		},
	)

	CollectorPending = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "assess_collector_pending_results",
			Help: "Results buffered in the collector awaiting a flush",
		},
	)

	CollectorFlushDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assess_collector_flush_duration_seconds",
			Help:    "Time spent preparing a result batch for sending",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		},
	)

	ResultsDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assess_results_dropped_total",
			Help: "Total results dropped before publishing, by reason",
		},
		[]string{"reason"},
	)

	MQTTConnected = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "assess_mqtt_connected",
			Help: "MQTT publisher connection status (1=connected, 0=disconnected)",
		},
	)

	MQTTConnects = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "assess_mqtt_connects_total",
			Help: "Total successful MQTT connections",
		},
	)

	MQTTReconnects = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "assess_mqtt_reconnects_total",
			Help: "Total MQTT reconnections",
		},
	)

	MQTTDisconnects = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "assess_mqtt_disconnects_total",
			Help: "Total MQTT disconnections",
		},
	)

	MQTTPublished = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "assess_mqtt_published_total",
			Help: "Total MQTT messages published",
		},
	)

	MQTTPublishFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "assess_mqtt_publish_failures_total",
			Help: "Total MQTT publish attempts that failed or timed out",
		},
	)

	registered = []prometheus.Collector{
		SequencesDecoded,
		BitsDecoded,
		DecodeErrors,
		TestInvocations,
		TestDuration,
		DispatchDuration,
		RunsStarted,
		RunsCompleted,
		RunActive,
		APIRequests,
		APILatency,
		APIRateLimited,
		ResultBatches,
		ResultBatchSize,
		CollectorPending,
		CollectorFlushDuration,
		ResultsDropped,
		MQTTConnected,
		MQTTConnects,
		MQTTReconnects,
		MQTTDisconnects,
		MQTTPublished,
		MQTTPublishFailures,
	}
}

func unregisterAll(registerer prometheus.Registerer) {
	for _, collector := range registered {
		registerer.Unregister(collector)
	}
	registered = nil
}

// RecordSequenceDecoded records one complete sequence of bits from source.
func RecordSequenceDecoded(source string, bits int) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	SequencesDecoded.WithLabelValues(source).Inc()
	if bits > 0 {
		BitsDecoded.Add(float64(bits))
	}
}

// RecordDecodeError records a fatal decode failure of the given kind.
func RecordDecodeError(kind string) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	DecodeErrors.WithLabelValues(kind).Inc()
}

// RecordTestInvocation records one test call and its duration.
func RecordTestInvocation(test string, ok bool, duration time.Duration) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	if duration < 0 {
		duration = 0
	}
	TestInvocations.WithLabelValues(test, outcome).Inc()
	TestDuration.WithLabelValues(test).Observe(duration.Seconds())
}

// RecordDispatch records the time taken to dispatch one sequence.
func RecordDispatch(duration time.Duration) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	if duration < 0 {
		duration = 0
	}
	DispatchDuration.Observe(duration.Seconds())
}

// RecordRunStarted marks a run as in progress.
func RecordRunStarted() {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	RunsStarted.Inc()
	RunActive.Inc()
}

// RecordRunFinished marks a run as finished with the given status.
func RecordRunFinished(status string) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	RunActive.Dec()
	RunsCompleted.WithLabelValues(status).Inc()
}

// RecordAPIRequest tracks latency and status codes for the assessment API.
func RecordAPIRequest(code int, duration time.Duration) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	label := strconv.Itoa(code)
	if code <= 0 {
		label = "0"
	}
	if duration < 0 {
		duration = 0
	}
	APIRequests.WithLabelValues(label).Inc()
	APILatency.Observe(duration.Seconds())
}

// RecordAPIRateLimited tracks rate-limited API responses.
func RecordAPIRateLimited() {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	APIRateLimited.Inc()
}

// RecordResultBatch records a result batch hand-off.
func RecordResultBatch(size int, success bool) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	status := "sent"
	if !success {
		status = "failed"
	}
	ResultBatches.WithLabelValues(status).Inc()
	ResultBatchSize.Observe(float64(size))
}

// SetCollectorPending sets the number of buffered results.
func SetCollectorPending(size int) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	CollectorPending.Set(float64(size))
}

// RecordCollectorFlush records the time spent preparing a batch.
func RecordCollectorFlush(duration time.Duration) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	if duration < 0 {
		duration = 0
	}
	CollectorFlushDuration.Observe(duration.Seconds())
}

// RecordResultsDropped records results that never reached the publisher.
func RecordResultsDropped(reason string, count int) {
	if count <= 0 {
		return
	}

	metricsMu.RLock()
	defer metricsMu.RUnlock()

	ResultsDropped.WithLabelValues(reason).Add(float64(count))
}

// SetMQTTConnected sets the MQTT connection status.
func SetMQTTConnected(connected bool) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	if connected {
		MQTTConnected.Set(1)
	} else {
		MQTTConnected.Set(0)
	}
}

// RecordMQTTConnect records a successful MQTT connection.
func RecordMQTTConnect() {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	MQTTConnects.Inc()
}

// RecordMQTTReconnect records an MQTT reconnection.
func RecordMQTTReconnect() {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	MQTTReconnects.Inc()
}

// RecordMQTTDisconnect records an MQTT disconnection.
func RecordMQTTDisconnect() {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	MQTTDisconnects.Inc()
}

// RecordMQTTPublish records the outcome of one publish.
func RecordMQTTPublish(success bool) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()

	if success {
		MQTTPublished.Inc()
	} else {
		MQTTPublishFailures.Inc()
	}
}
