// Package metrics records booking, cache and reconciliation counters through
// the OpenTelemetry metric API and exposes them in Prometheus format.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const MeterName = "github.com/arunvm123/campsite"

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailure  = "failure"
)

// Provider owns the meter provider and the registry scraped on /metrics.
type Provider struct {
	mp       *sdkmetric.MeterProvider
	registry *prom.Registry
}

// NewPrometheusProvider wires an OTel meter provider to a private
// Prometheus registry and installs it as the global provider.
func NewPrometheusProvider() (*Provider, error) {
	registry := prom.NewRegistry()

	exp, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(mp)

	return &Provider{mp: mp, registry: registry}, nil
}

func (p *Provider) Meter() metric.Meter {
	return p.mp.Meter(MeterName)
}

// Handler serves the registry in the Prometheus text format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}

// Recorder holds the service instruments. A nil *Recorder records nothing.
type Recorder struct {
	bookings      metric.Int64Counter
	cacheLookups  metric.Int64Counter
	reconcileRuns metric.Int64Counter
}

func NewRecorder(meter metric.Meter) (*Recorder, error) {
	bookings, err := meter.Int64Counter(
		"campsite.bookings",
		metric.WithDescription("Booking operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"campsite.cache.lookups",
		metric.WithDescription("Booked-dates cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	reconcileRuns, err := meter.Int64Counter(
		"campsite.reconcile.runs",
		metric.WithDescription("Cache reconciliation runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		bookings:      bookings,
		cacheLookups:  cacheLookups,
		reconcileRuns: reconcileRuns,
	}, nil
}

// NewNoopRecorder returns a recorder backed by the noop meter provider.
func NewNoopRecorder() *Recorder {
	r, _ := NewRecorder(noop.NewMeterProvider().Meter(MeterName))
	return r
}

// BookingOperation counts one create/modify/cancel attempt.
func (r *Recorder) BookingOperation(ctx context.Context, operation, outcome string) {
	if r == nil {
		return
	}
	r.bookings.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func (r *Recorder) CacheLookup(ctx context.Context, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (r *Recorder) ReconcileRun(ctx context.Context, outcome string) {
	if r == nil {
		return
	}
	r.reconcileRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
