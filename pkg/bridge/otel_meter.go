package bridge

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter  = otel.Meter("vanish/bridge")
	tracer = otel.Tracer("vanish/bridge")
)

const (
	roleProxy   = "proxy"
	roleBackend = "backend"
)

var (
	appliedCounter, _ = meter.Int64Counter(
		"vanish.bridge.changes_applied",
		metric.WithDescription("State changes accepted by the bridge"),
		metric.WithUnit("1"),
	)
	discardedCounter, _ = meter.Int64Counter(
		"vanish.bridge.changes_discarded",
		metric.WithDescription("State changes discarded as stale or unauthorized"),
		metric.WithUnit("1"),
	)
	droppedCounter, _ = meter.Int64Counter(
		"vanish.bridge.messages_dropped",
		metric.WithDescription("Messages dropped because a send queue was full"),
		metric.WithUnit("1"),
	)
)

func recordApplied(role string, c *StateChange) {
	appliedCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.Bool("removed", c.Removed),
	))
}

func recordDiscarded(role string) {
	discardedCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("role", role),
	))
}

func recordDropped(m *Message) {
	droppedCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", string(m.Kind)),
	))
}

func (p *Proxy) initMeter() error {
	_, err := meter.Int64ObservableGauge(
		"vanish.bridge.snapshot_entries",
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			p.mu.RLock()
			n := len(p.snapshot)
			p.mu.RUnlock()
			o.Observe(int64(n))
			return nil
		}),
		metric.WithDescription("The current number of entries in the proxy snapshot"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	_, err = meter.Int64ObservableGauge(
		"vanish.bridge.connected_backends",
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			o.Observe(int64(len(p.Backends())))
			return nil
		}),
		metric.WithDescription("The current number of connected backend servers"),
		metric.WithUnit("1"),
	)
	return err
}
