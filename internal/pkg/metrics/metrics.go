// Package metrics provides Prometheus metrics definitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notesgarden"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestsInFlight tracks requests currently being served.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)

	// UnitOfWorkFinished counts units of work by terminal outcome.
	UnitOfWorkFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uow",
			Name:      "finished_total",
			Help:      "Units of work by outcome (committed, rolled_back, commit_failed)",
		},
		[]string{"outcome"},
	)

	// UnitOfWorkDuration tracks how long transactions stay open.
	UnitOfWorkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "uow",
			Name:      "duration_seconds",
			Help:      "Time from begin to commit or rollback",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// TagResolutionRetries counts tag resolutions repeated after a concurrent insert.
	TagResolutionRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notes",
			Name:      "tag_resolution_retries_total",
			Help:      "Tag resolutions retried after a unique violation",
		},
	)

	// PasswordHashDuration tracks argon2 hashing time.
	PasswordHashDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "password_hash_duration_seconds",
			Help:      "Password hashing duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1},
		},
	)

	// MailsSent counts outgoing mail by result.
	MailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mailer",
			Name:      "mails_total",
			Help:      "Outgoing mail by result (sent, retry, failed, dropped)",
		},
		[]string{"result"},
	)
)
