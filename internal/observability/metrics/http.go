package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	inputCategoryTotal   *prometheus.CounterVec
	sufficiencyTierTotal *prometheus.CounterVec
	queryStrategyTotal   *prometheus.CounterVec
	retrievalPoolSize    *prometheus.HistogramVec
	pipelineDuration     *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ng12",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ng12",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ng12",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	inputCategoryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ng12",
			Subsystem: "pipeline",
			Name:      "input_category_total",
			Help:      "Chat messages by input-guardrail category.",
		},
		[]string{"service", "category"},
	)
	sufficiencyTierTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ng12",
			Subsystem: "pipeline",
			Name:      "sufficiency_tier_total",
			Help:      "Retrieval outcomes by evidence-sufficiency tier.",
		},
		[]string{"service", "tier"},
	)
	queryStrategyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ng12",
			Subsystem: "pipeline",
			Name:      "query_strategy_total",
			Help:      "Search queries by construction strategy.",
		},
		[]string{"service", "strategy"},
	)
	retrievalPoolSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ng12",
			Subsystem: "pipeline",
			Name:      "retrieval_pool_size",
			Help:      "Distribution of merged candidate pool sizes per retrieval.",
			Buckets:   []float64{0, 2, 4, 8, 12, 18, 24, 36, 48},
		},
		[]string{"service", "endpoint"},
	)
	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ng12",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		inputCategoryTotal,
		sufficiencyTierTotal,
		queryStrategyTotal,
		retrievalPoolSize,
		pipelineDuration,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		inputCategoryTotal:   inputCategoryTotal,
		sufficiencyTierTotal: sufficiencyTierTotal,
		queryStrategyTotal:   queryStrategyTotal,
		retrievalPoolSize:    retrievalPoolSize,
		pipelineDuration:     pipelineDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/sessions/"):
		return "/v1/sessions/{session_id}"
	default:
		return path
	}
}

// RecordChatDecision counts one terminal chat routing outcome. Labels may be
// empty on canned paths that skip retrieval.
func (m *HTTPServerMetrics) RecordChatDecision(service, category, tier, strategy string) {
	if category != "" {
		m.inputCategoryTotal.WithLabelValues(service, category).Inc()
	}
	if tier != "" {
		m.sufficiencyTierTotal.WithLabelValues(service, tier).Inc()
	}
	if strategy != "" {
		m.queryStrategyTotal.WithLabelValues(service, strategy).Inc()
	}
}

func (m *HTTPServerMetrics) RecordPipeline(service, endpoint string, poolSize int, duration time.Duration) {
	m.retrievalPoolSize.WithLabelValues(service, endpoint).Observe(float64(poolSize))
	m.pipelineDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
