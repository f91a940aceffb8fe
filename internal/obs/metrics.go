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

// HTTP metrics
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
)

// Auth metrics
var (
	RateLimitFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_rate_limit_failures_total",
			Help: "Failed credential attempts recorded by the limiter.",
		},
		[]string{"policy"},
	)

	Lockouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_lockouts_total",
			Help: "Failures that reached the attempt ceiling.",
		},
		[]string{"policy"},
	)

	SignIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sign_ins_total",
			Help: "Staff sign-in attempts by flow and outcome.",
		},
		[]string{"flow", "outcome"},
	)

	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "staff_sessions_created_total",
		Help: "Staff sessions issued.",
	})

	SessionsTerminated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staff_sessions_terminated_total",
			Help: "Staff sessions ended, by reason.",
		},
		[]string{"reason"},
	)

	AuditDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_dropped_total",
		Help: "Audit records dropped because the queue was full.",
	})

	AuditSinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_sink_errors_total",
			Help: "Audit sink write failures.",
		},
		[]string{"sink"},
	)

	StreamDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "activity_stream_dropped_total",
		Help: "Activity entries not delivered to a slow live subscriber.",
	})
)

var initOnce sync.Once

// Init registers every collector with the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			RateLimitFailures, Lockouts, SignIns,
			SessionsCreated, SessionsTerminated,
			AuditDropped, AuditSinkErrors, StreamDropped,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records in-flight, count and latency per canonical route.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// collection name -> path segments that are fixed routes rather than ids.
var idCollections = map[string]map[string]bool{
	"staff":    {"login": true, "logout": true, "pin": true, "me": true},
	"sessions": {"terminate": true, "sign-out-all": true},
}

var staffActions = map[string]bool{
	"role":       true,
	"deactivate": true,
	"activate":   true,
	"pin/reset":  true,
	"signin":     true,
}

// CanonicalPath collapses resource ids so metric labels stay bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return raw
	}
	fixed, ok := idCollections[parts[1]]
	if !ok || fixed[parts[2]] {
		return raw
	}
	prefix := "/v1/" + parts[1] + "/:id"
	if len(parts) == 3 {
		return prefix
	}
	rest := strings.Join(parts[3:], "/")
	if parts[1] == "staff" && staffActions[rest] {
		return prefix + "/" + rest
	}
	return raw
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
