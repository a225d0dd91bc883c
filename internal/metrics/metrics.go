// Package metrics defines the Prometheus metrics exported on /metrics.
// Metrics are registered with the default registry at package init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scoreboard"

// ── HTTP ──────────────────────────────────────────────────────────────────────

// HTTPRequestsTotal counts served requests.
// Labels:
//   - route:  the chi route pattern (e.g. "/api/scores"), or "static" for file lookups
//   - method: HTTP method
//   - code:   response status code
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests, by route, method and status code.",
	},
	[]string{"route", "method", "code"},
)

// HTTPRequestDuration measures handler latency by route.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests from first byte to last write.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"route"},
)

// ── Accounts ──────────────────────────────────────────────────────────────────

// SignupsTotal counts signup attempts.
// Label:
//   - result: "created", "email_in_use", "missing_fields" or "error"
var SignupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signups_total",
		Help:      "Total number of signup attempts, by result.",
	},
	[]string{"result"},
)

// LoginsTotal counts login attempts.
// Label:
//   - result: "ok", "invalid_credentials", "missing_fields" or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// ── Scores ────────────────────────────────────────────────────────────────────

// ScoresSubmittedTotal counts scores persisted.
var ScoresSubmittedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scores_submitted_total",
		Help:      "Total number of scores accepted and stored.",
	},
)

// ScoresRejectedTotal counts submissions rejected at validation.
var ScoresRejectedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scores_rejected_total",
		Help:      "Total number of score submissions rejected as invalid.",
	},
)
