package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pointledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pointledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	earningSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pointledger",
			Subsystem: "ledger",
			Name:      "earning_submissions_total",
			Help:      "Activity submissions by outcome.",
		},
		[]string{"outcome"},
	)

	redemptionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pointledger",
			Subsystem: "ledger",
			Name:      "redemption_requests_total",
			Help:      "Redemption requests by outcome.",
		},
		[]string{"outcome"},
	)

	redemptionApprovals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pointledger",
			Subsystem: "ledger",
			Name:      "redemption_approvals_total",
			Help:      "Redemption approval attempts by outcome.",
		},
		[]string{"outcome"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pointledger",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		},
		[]string{"scope"},
	)

	pointsMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pointledger",
			Subsystem: "ledger",
			Name:      "points_total",
			Help:      "Points credited or debited.",
		},
		[]string{"direction"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		earningSubmissions,
		redemptionRequests,
		redemptionApprovals,
		pointsMoved,
		rateLimited,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordEarning counts a submission attempt and the points it credited.
func RecordEarning(outcome string, points int) {
	earningSubmissions.WithLabelValues(outcome).Inc()
	if points > 0 {
		pointsMoved.WithLabelValues("credit").Add(float64(points))
	}
}

// RecordRedemptionRequest counts a redemption request attempt.
func RecordRedemptionRequest(outcome string) {
	redemptionRequests.WithLabelValues(outcome).Inc()
}

// RecordApproval counts an approval attempt and the points it debited.
func RecordApproval(outcome string, points int) {
	redemptionApprovals.WithLabelValues(outcome).Inc()
	if points > 0 {
		pointsMoved.WithLabelValues("debit").Add(float64(points))
	}
}

func RecordRateLimited(scope string) {
	rateLimited.WithLabelValues(scope).Inc()
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// apiRoutes lists the API paths that get their own label. Anything else,
// including unrouted /api/ paths, is labelled "other" so clients cannot mint
// new series.
var apiRoutes = map[string]bool{
	"/api/signup/":                   true,
	"/api/signin/":                   true,
	"/api/signout/":                  true,
	"/api/user-profile/":             true,
	"/api/update-points/":            true,
	"/api/get_completed_forms/":      true,
	"/api/mark_form_completed/":      true,
	"/api/count_forms_submitted/":    true,
	"/api/upload_achievement_image/": true,
	"/api/achievement_images/":       true,
	"/api/redeem_reward/":            true,
	"/api/redemption_requests/":      true,
	"/api/approve_reward/":           true,
	"/api/approve_rewards/":          true,
	"/api/deactivate_account/":       true,
}

func canonicalPath(raw string) string {
	switch {
	case raw == "" || raw == "/":
		return "/"
	case raw == "/health", raw == "/ws":
		return raw
	case strings.HasPrefix(raw, "/media/"):
		return "/media/"
	}
	p := raw
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	if apiRoutes[p] {
		return p
	}
	return "other"
}
