package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outbound REST Client Metrics
var (
	// RestRequestsTotal tracks outbound requests by platform, method, and final result
	RestRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rest_requests_total",
			Help: "Total outbound REST requests by platform, method, and result (success/request_failed/retries_exhausted/network_error)",
		},
		[]string{"platform", "method", "result"},
	)

	// RestRequestDuration tracks outbound request latency across all attempts
	RestRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rest_request_duration_seconds",
			Help:    "Outbound REST request duration in seconds, including retries and throttle waits",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"platform", "method"},
	)

	// RestRetriesTotal tracks retry attempts by platform and trigger condition
	RestRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rest_retries_total",
			Help: "Total REST retry attempts by platform and reason (rate_limited/server_error/network_error)",
		},
		[]string{"platform", "reason"},
	)

	// RestThrottleWaits tracks requests that had to wait for the dispatch interval
	RestThrottleWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rest_throttle_waits_total",
			Help: "Total requests delayed by the fixed-interval dispatch throttle",
		},
		[]string{"platform"},
	)
)

// OAuth Flow Metrics
var (
	// TokenRefreshesTotal tracks token refreshes by platform and result
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauth_token_refreshes_total",
			Help: "Total token refreshes by platform and result (success/failure/coalesced)",
		},
		[]string{"platform", "result"},
	)

	// TokenExchangesTotal tracks authorization-code exchanges by platform and result
	TokenExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauth_token_exchanges_total",
			Help: "Total authorization-code exchanges by platform and result (success/failure)",
		},
		[]string{"platform", "result"},
	)

	// RefreshLockWaits tracks callers that blocked behind an in-flight refresh
	RefreshLockWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oauth_refresh_lock_waits_total",
			Help: "Total callers that waited on the per-user refresh lock",
		},
		[]string{"platform"},
	)
)

// Secret Store Metrics
var (
	// SecretStoreOpsTotal tracks secret store operations by op and status
	SecretStoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secret_store_operations_total",
			Help: "Total secret store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)

// HTTP Request Metrics
// Note: http_errors_total{type} is provided by the internal/errors middleware.
