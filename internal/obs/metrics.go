package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eventclient_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventclient_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventclient_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventclient_gate_decisions_total",
			Help: "Navigation decisions by mode and action.",
		},
		[]string{"mode", "action"},
	)

	fetchDispatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventclient_fetch_dispatched_total",
		Help: "Apply-filters fetches dispatched by dashboard engines.",
	})

	fetchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventclient_fetch_outcomes_total",
			Help: "Completed apply-filters fetches by outcome (applied, stale, error).",
		},
		[]string{"outcome"},
	)

	sessionExpiries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventclient_session_expired_total",
		Help: "Sessions cleared by the mount-time expiry check.",
	})
)

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			gateDecisions, fetchDispatches, fetchOutcomes, sessionExpiries,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func GateDecision(mode, action string) {
	gateDecisions.WithLabelValues(mode, action).Inc()
}

func FetchDispatched() { fetchDispatches.Inc() }

func FetchOutcome(outcome string) {
	fetchOutcomes.WithLabelValues(outcome).Inc()
}

func SessionExpired() { sessionExpiries.Inc() }

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath folds page navigations and id-bearing paths into a bounded
// label set.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	switch {
	case p == "/metrics", p == "/healthz", p == "/readyz":
		return p
	case strings.HasPrefix(p, "/api/v1/dashboard/events/"):
		return "/api/v1/dashboard/events/:id"
	case strings.HasPrefix(p, "/api/"):
		return p
	default:
		return "/page"
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
