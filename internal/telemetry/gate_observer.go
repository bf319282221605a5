package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sentinel-Gate/docgate/internal/domain/gate"
)

// GateObserver records gate decisions as OTel instruments and forwards
// every observation to next.
type GateObserver struct {
	next      gate.Observer
	decisions metric.Int64Counter
	duration  metric.Float64Histogram
	cache     metric.Int64Counter
}

// NewGateObserver creates the gate instruments on meter. next may be nil.
func NewGateObserver(meter metric.Meter, next gate.Observer) (*GateObserver, error) {
	decisions, err := meter.Int64Counter("docgate.gate.decisions",
		metric.WithDescription("Auth gate decisions by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create decisions counter: %w", err)
	}
	duration, err := meter.Float64Histogram("docgate.gate.duration",
		metric.WithDescription("Auth gate evaluation time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	cache, err := meter.Int64Counter("docgate.gate.view_cache",
		metric.WithDescription("Session view cache lookups"))
	if err != nil {
		return nil, fmt.Errorf("create cache counter: %w", err)
	}
	return &GateObserver{next: next, decisions: decisions, duration: duration, cache: cache}, nil
}

// ObserveDecision implements gate.Observer.
func (o *GateObserver) ObserveDecision(d gate.Decision, elapsed time.Duration) {
	ctx := context.Background()
	o.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", d.Outcome.String()),
		attribute.Bool("bypassed", d.Bypassed),
	))
	if !d.Bypassed {
		o.duration.Record(ctx, elapsed.Seconds())
	}
	if o.next != nil {
		o.next.ObserveDecision(d, elapsed)
	}
}

// ObserveViewCache implements gate.Observer.
func (o *GateObserver) ObserveViewCache(hit bool) {
	o.cache.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("hit", hit)))
	if o.next != nil {
		o.next.ObserveViewCache(hit)
	}
}

var _ gate.Observer = (*GateObserver)(nil)
