package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/jrsteele09/go-wallet-web"
)

// Outcome labels shared by the login and revalidation counters.
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid_credentials"
	OutcomeRateLimited = "rate_limited"
	OutcomeUnavailable = "unavailable"
	OutcomeStale       = "stale"
	OutcomeRevoked     = "revoked"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Gateway metrics
	LoginAttemptsTotal     metric.Int64Counter
	RevalidationsTotal     metric.Int64Counter
	LogoutsTotal           metric.Int64Counter
	AuthorityCallDuration  metric.Float64Histogram
	UnauthorizedClearTotal metric.Int64Counter

	// Guard metrics
	ActiveAttachments metric.Int64UpDownCounter
	RevocationsTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// RecordLogin counts a login attempt by outcome.
func (m *Metrics) RecordLogin(ctx context.Context, method, outcome string) {
	m.LoginAttemptsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
}

// RecordRevalidation counts a token revalidation by outcome.
func (m *Metrics) RecordRevalidation(ctx context.Context, outcome string) {
	m.RevalidationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.LoginAttemptsTotal, _ = meter.Int64Counter(
		"wallet.auth.login.attempts.total",
		metric.WithDescription("Total number of login attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)

	m.RevalidationsTotal, _ = meter.Int64Counter(
		"wallet.auth.revalidations.total",
		metric.WithDescription("Total number of session token revalidations by outcome"),
		metric.WithUnit("{check}"),
	)

	m.LogoutsTotal, _ = meter.Int64Counter(
		"wallet.auth.logouts.total",
		metric.WithDescription("Total number of explicit logouts"),
		metric.WithUnit("{logout}"),
	)

	m.AuthorityCallDuration, _ = meter.Float64Histogram(
		"wallet.auth.authority.duration",
		metric.WithDescription("Duration of identity authority calls"),
		metric.WithUnit("ms"),
	)

	m.UnauthorizedClearTotal, _ = meter.Int64Counter(
		"wallet.auth.unauthorized_clears.total",
		metric.WithDescription("Total number of sessions cleared after a 401 from an authenticated call"),
		metric.WithUnit("{session}"),
	)

	m.ActiveAttachments, _ = meter.Int64UpDownCounter(
		"wallet.guard.attachments.active",
		metric.WithDescription("Number of protected views currently attached to a session"),
		metric.WithUnit("{view}"),
	)

	m.RevocationsTotal, _ = meter.Int64Counter(
		"wallet.guard.revocations.total",
		metric.WithDescription("Total number of protected views revoked by session invalidation"),
		metric.WithUnit("{view}"),
	)

	return m
}
