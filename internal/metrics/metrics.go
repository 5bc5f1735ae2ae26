// Package metrics provides Prometheus instrumentation for the CiviLens server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civilens",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status class.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "civilens",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	OTPSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "civilens",
		Name:      "otp_sent_total",
		Help:      "One-time codes handed to the delivery channel.",
	})

	// OTPVerificationsTotal counts code submissions by result (ok, mismatch).
	OTPVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civilens",
			Name:      "otp_verifications_total",
			Help:      "One-time code submissions by result.",
		},
		[]string{"result"},
	)

	ReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civilens",
			Name:      "reports_total",
			Help:      "Accepted violation reports by violation type.",
		},
		[]string{"violation_type"},
	)

	// DetectionsTotal counts detector calls by result (detected, not_detected, error).
	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civilens",
			Name:      "detections_total",
			Help:      "Detection service calls by result.",
		},
		[]string{"result"},
	)

	DetectionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "civilens",
		Name:      "detections_in_flight",
		Help:      "Detection service calls currently outstanding.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		OTPSentTotal,
		OTPVerificationsTotal,
		ReportsTotal,
		DetectionsTotal,
		DetectionsInFlight,
	)
}

// Middleware records request counts and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusBucket(ww.Status())).Inc()
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func statusBucket(code int) string {
	if code == 0 {
		code = http.StatusOK
	}
	return strconv.Itoa(code/100) + "xx"
}
