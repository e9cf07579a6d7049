package obs

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization pipeline decisions by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)

	auditFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Audit entries that could not be persisted.",
	})

	loginThrottled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_login_throttled_total",
		Help: "Login attempts rejected by the throttle.",
	})

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the last readiness check succeeded.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gestoria_build_info",
		Help: "Constant 1, labelled with the running version and commit.",
	}, []string{"version", "commit"})

	initOnce sync.Once
)

// Init registers the service collectors in the default registry and stamps
// the build labels. Later calls only move the build labels.
func Init(version, commit string) {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
			authzDecisions, auditFailures, loginThrottled, readyGauge, buildInfo)
	})
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision counts one authorization stage outcome.
func ObserveDecision(stage, outcome string) {
	authzDecisions.WithLabelValues(stage, outcome).Inc()
}

// AuditWriteFailed counts an audit entry that was dropped.
func AuditWriteFailed() { auditFailures.Inc() }

// LoginThrottled counts a throttled login attempt.
func LoginThrottled() { loginThrottled.Inc() }

// SetReady records the last readiness check result.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// Instrument records request count, latency and in-flight gauge. The path
// label is the chi route pattern when one matched.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			path = rctx.RoutePattern()
		}
		if path == "" {
			path = CanonicalPath(r.URL.Path)
		}
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

var idSegment = regexp.MustCompile(`^([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}|[0-9A-HJKMNP-TV-Z]{26}|[0-9]+)$`)

// CanonicalPath collapses identifier segments to ":id" so unmatched paths do
// not explode label cardinality.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	parts := strings.Split(raw, "/")
	for i, p := range parts {
		if idSegment.MatchString(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
