package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fairyhunter13/ai-vuln-analyzer/internal/domain"
)

// Acknowledgment outcomes used as the jobs_consumed_total label.
const (
	OutcomeAcked     = "acked"
	OutcomeRequeued  = "requeued"
	OutcomeDiscarded = "discarded"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	JobsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_consumed_total",
			Help: "Total number of queue deliveries by acknowledgment outcome",
		},
		[]string{"outcome"},
	)
	JobProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_processing_duration_seconds",
			Help:    "End-to-end processing duration of one delivery in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of chat-completion calls by operation and status",
		},
		[]string{"operation", "status"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Chat-completion call duration in seconds, retries included",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Estimated tokens exchanged with the generation service",
		},
		[]string{"kind"},
	)

	StoreUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_updates_total",
			Help: "Total number of sink writes by outcome",
		},
		[]string{"outcome"},
	)

	BrokerReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_reconnects_total",
			Help: "Total number of broker reconnect transitions",
		},
	)
	BrokerConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_connected",
			Help: "1 while the consumer holds a live broker connection",
		},
	)

	SeverityDeterminedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "severity_determined_total",
			Help: "Distribution of severities the analyzer determined",
		},
		[]string{"severity"},
	)
)

// InitMetrics registers all collectors. Call once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(JobsConsumedTotal)
	prometheus.MustRegister(JobProcessingDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(AITokensTotal)
	prometheus.MustRegister(StoreUpdatesTotal)
	prometheus.MustRegister(BrokerReconnectsTotal)
	prometheus.MustRegister(BrokerConnected)
	prometheus.MustRegister(SeverityDeterminedTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ObserveDelivery records one delivery's acknowledgment outcome and duration.
func ObserveDelivery(outcome string, dur time.Duration) {
	JobsConsumedTotal.WithLabelValues(outcome).Inc()
	JobProcessingDuration.WithLabelValues(outcome).Observe(dur.Seconds())
}

// ObserveAIRequest records one chat-completion call, retries included.
func ObserveAIRequest(operation string, err error, dur time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	AIRequestsTotal.WithLabelValues(operation, status).Inc()
	AIRequestDuration.WithLabelValues(operation).Observe(dur.Seconds())
}

// AddTokenUsage accumulates estimated prompt/completion token counts.
func AddTokenUsage(promptTokens, completionTokens int) {
	if promptTokens > 0 {
		AITokensTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		AITokensTotal.WithLabelValues("completion").Add(float64(completionTokens))
	}
}

// RecordStoreUpdate counts one sink write outcome
// (updated, unchanged, unmatched, error).
func RecordStoreUpdate(outcome string) {
	StoreUpdatesTotal.WithLabelValues(outcome).Inc()
}

// SetBrokerConnected flips the connection gauge.
func SetBrokerConnected(connected bool) {
	if connected {
		BrokerConnected.Set(1)
		return
	}
	BrokerConnected.Set(0)
}

// ObserveSeverity counts one determined severity. Values outside the known
// levels are folded into "other" to keep the label set bounded.
func ObserveSeverity(severity string) {
	if !domain.ValidSeverity(severity) {
		severity = "other"
	}
	SeverityDeterminedTotal.WithLabelValues(severity).Inc()
}
