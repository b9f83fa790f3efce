package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTP surfaces, used to split API, form and probe traffic on dashboards.
const (
	SurfaceAPI       = "api"
	SurfacePage      = "page"
	SurfaceOps       = "ops"
	SurfaceUnmatched = "unmatched"
)

const (
	APIKeyMissing = "missing"
	APIKeyInvalid = "invalid"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_http_requests_total",
			Help: "Total number of HTTP requests by surface and route.",
		},
		[]string{"surface", "method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "askql_http_request_duration_seconds",
			Help: "HTTP request latency by surface and route.",
			// Ask requests wait on text generation and the query.
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"surface", "method", "route", "status"},
	)

	apiKeyRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_api_key_rejections_total",
			Help: "Requests to the JSON API refused for a missing or unknown key.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, apiKeyRejectionsTotal)
}

// RouteSurface maps a registered mux pattern such as "POST /api/ask" to its surface.
func RouteSurface(pattern string) string {
	if pattern == "" {
		return SurfaceUnmatched
	}
	path := pattern
	if _, rest, ok := strings.Cut(pattern, " "); ok {
		path = rest
	}
	switch {
	case strings.HasPrefix(path, "/api/"):
		return SurfaceAPI
	case path == "/healthz" || path == "/readyz" || path == "/metrics":
		return SurfaceOps
	default:
		return SurfacePage
	}
}

func RecordAPIKeyRejection(reason string) {
	apiKeyRejectionsTotal.WithLabelValues(reason).Inc()
}
