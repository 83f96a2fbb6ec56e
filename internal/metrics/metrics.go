// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shuttercam"

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "notifications_total",
			Help:      "Notifications received from the peripheral",
		},
		[]string{"characteristic"},
	)

	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts after link loss",
		},
	)

	degradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "degraded_total",
			Help:      "Times the link was lost",
		},
		[]string{"reason"},
	)

	linkState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "state",
			Help:      "1 for the current link state, 0 otherwise",
		},
		[]string{"state"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "decisions_total",
			Help:      "Dispatch decisions by outcome",
		},
		[]string{"outcome"},
	)

	capturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "camera",
			Name:      "captures_total",
			Help:      "Captures by result",
		},
		[]string{"result"},
	)

	captureDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "camera",
			Name:      "capture_duration_seconds",
			Help:      "Duration of capture commands in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		notificationsTotal, reconnectsTotal, degradedTotal, linkState,
		decisionsTotal, capturesTotal, captureDuration, httpRequestsTotal,
	)
}

// LinkStates lists every value SetLinkState accepts.
var LinkStates = []string{"disconnected", "connecting", "subscribed", "degraded"}

// Notification counts one received payload.
func Notification(characteristic string) {
	notificationsTotal.WithLabelValues(characteristic).Inc()
}

// Reconnect counts one reconnect attempt.
func Reconnect() {
	reconnectsTotal.Inc()
}

// Degraded counts a link loss.
func Degraded(reason string) {
	degradedTotal.WithLabelValues(reason).Inc()
}

// SetLinkState marks state as the current link state.
func SetLinkState(state string) {
	for _, s := range LinkStates {
		v := 0.0
		if s == state {
			v = 1
		}
		linkState.WithLabelValues(s).Set(v)
	}
}

// Decision counts one dispatch decision.
func Decision(outcome string) {
	decisionsTotal.WithLabelValues(outcome).Inc()
}

// Capture records a finished capture.
func Capture(err error, took time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	capturesTotal.WithLabelValues(result).Inc()
	captureDuration.Observe(took.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working through the middleware.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware counts requests by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		httpRequestsTotal.WithLabelValues(routePatternOrPath(r), r.Method, strconv.Itoa(sr.status)).Inc()
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
