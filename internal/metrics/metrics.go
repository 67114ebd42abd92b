package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpmboard_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cpmboard_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Listing lifecycle metrics
var (
	ListingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpmboard_listings_created_total",
		Help: "Total number of listings created",
	})

	ListingsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpmboard_listings_deleted_total",
		Help: "Total number of listings deleted (owner or admin)",
	})
)

// Engagement and moderation metrics
var (
	EngagementOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpmboard_engagement_ops_total",
		Help: "Total number of applied engagement operations",
	}, []string{"kind", "op"})

	ReportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpmboard_reports_total",
		Help: "Total number of accepted listing reports",
	})

	AutoHidesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpmboard_auto_hides_total",
		Help: "Total number of listings hidden by the report threshold",
	})

	AdminActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpmboard_admin_actions_total",
		Help: "Total number of admin override actions",
	}, []string{"action"})

	AdminSessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpmboard_admin_sessions_created_total",
		Help: "Total number of admin sessions created",
	})

	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpmboard_rate_limited_total",
		Help: "Total number of requests rejected by rate limiting",
	}, []string{"limiter"})
)

// NormalizePath collapses listing-id path segments so metrics cardinality
// stays bounded. "/api/listings/3f2a.../report" becomes
// "/api/listings/:id/report".
func NormalizePath(path string) string {
	const prefix = "/api/listings/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return path
	}
	parts := strings.SplitN(rest, "/", 2)
	normalized := prefix + ":id"
	if len(parts) == 2 {
		normalized += "/" + parts[1]
	}
	return normalized
}
