package metrics

import (
	"bufio"
	"fmt"
	"net"
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

	ragRequestsTotal     *prometheus.CounterVec
	ragRetrievalHitTotal *prometheus.CounterVec
	ragNoContextTotal    *prometheus.CounterVec
	ragRetrievedChunks   *prometheus.HistogramVec
	ragDuration          *prometheus.HistogramVec

	quizItemsTotal      *prometheus.CounterVec
	quizRejectionsTotal *prometheus.CounterVec
	quizShortageTotal   *prometheus.CounterVec
	quizDuration        *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docquiz",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docquiz",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docquiz",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ragRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docquiz",
			Subsystem: "rag",
			Name:      "requests_total",
			Help:      "Total successful retrieval-grounded answer requests.",
		},
		[]string{"service", "endpoint"},
	)
	ragRetrievalHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docquiz",
			Subsystem: "rag",
			Name:      "retrieval_hit_total",
			Help:      "Total answer requests with at least one citation.",
		},
		[]string{"service", "endpoint"},
	)
	ragNoContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docquiz",
			Subsystem: "rag",
			Name:      "no_context_total",
			Help:      "Total answer requests with no citations.",
		},
		[]string{"service", "endpoint"},
	)
	ragRetrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docquiz",
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Distribution of citations per successful answer request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	ragDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docquiz",
			Subsystem: "rag",
			Name:      "duration_seconds",
			Help:      "Answer pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	quizItemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docquiz",
			Subsystem: "quiz",
			Name:      "items_generated_total",
			Help:      "Total accepted quiz items by difficulty.",
		},
		[]string{"service", "difficulty"},
	)
	quizRejectionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docquiz",
			Subsystem: "quiz",
			Name:      "rejections_total",
			Help:      "Total rejected quiz drafts by reason.",
		},
		[]string{"service", "reason"},
	)
	quizShortageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docquiz",
			Subsystem: "quiz",
			Name:      "shortage_total",
			Help:      "Total quiz requests that ended below the requested count.",
		},
		[]string{"service"},
	)
	quizDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docquiz",
			Subsystem: "quiz",
			Name:      "generation_duration_seconds",
			Help:      "Quiz generation duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 90, 120},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ragRequestsTotal,
		ragRetrievalHitTotal,
		ragNoContextTotal,
		ragRetrievedChunks,
		ragDuration,
		quizItemsTotal,
		quizRejectionsTotal,
		quizShortageTotal,
		quizDuration,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		ragRequestsTotal:     ragRequestsTotal,
		ragRetrievalHitTotal: ragRetrievalHitTotal,
		ragNoContextTotal:    ragNoContextTotal,
		ragRetrievedChunks:   ragRetrievedChunks,
		ragDuration:          ragDuration,
		quizItemsTotal:       quizItemsTotal,
		quizRejectionsTotal:  quizRejectionsTotal,
		quizShortageTotal:    quizShortageTotal,
		quizDuration:         quizDuration,
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
	case strings.HasPrefix(path, "/v1/quiz-sets/"):
		if strings.HasSuffix(path, "/export") {
			return "/v1/quiz-sets/{set_id}/export"
		}
		return "/v1/quiz-sets/{set_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordRAGObservation(service, endpoint string, citationCount int, duration time.Duration) {
	m.ragRequestsTotal.WithLabelValues(service, endpoint).Inc()
	m.ragRetrievedChunks.WithLabelValues(service, endpoint).Observe(float64(citationCount))
	m.ragDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())

	if citationCount > 0 {
		m.ragRetrievalHitTotal.WithLabelValues(service, endpoint).Inc()
		return
	}
	m.ragNoContextTotal.WithLabelValues(service, endpoint).Inc()
}

func (m *HTTPServerMetrics) RecordQuizGeneration(service, difficulty string, accepted int, duration time.Duration) {
	if accepted > 0 {
		m.quizItemsTotal.WithLabelValues(service, difficulty).Add(float64(accepted))
	}
	m.quizDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordQuizRejections(service string, reasons map[string]int) {
	for reason, count := range reasons {
		if count <= 0 {
			continue
		}
		m.quizRejectionsTotal.WithLabelValues(service, reason).Add(float64(count))
	}
}

func (m *HTTPServerMetrics) RecordQuizShortage(service string) {
	m.quizShortageTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
