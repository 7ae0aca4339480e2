// File: control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// OpenTelemetry instruments for the reactor core. The global meter provider
// is a no-op unless the embedding application installs an SDK, so metrics
// cost nothing by default.

package control

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the reactor core's instruments.
type Metrics struct {
	tasks     metric.Int64Counter
	fires     metric.Int64Counter
	evictions metric.Int64Counter
	arrays    metric.Int64UpDownCounter
}

// NewMetrics builds instruments against the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/momentics/kio")
	tasks, err := meter.Int64Counter("kio.scheduler.tasks",
		metric.WithDescription("tasks drained by Scheduler.Execute"))
	if err != nil {
		return nil, err
	}
	fires, err := meter.Int64Counter("kio.scheduler.fires",
		metric.WithDescription("link callbacks fired by Scheduler.Execute"))
	if err != nil {
		return nil, err
	}
	evictions, err := meter.Int64Counter("kio.matrix.evictions",
		metric.WithDescription("idle arrays evicted from the matrix live set"))
	if err != nil {
		return nil, err
	}
	arrays, err := meter.Int64UpDownCounter("kio.matrix.arrays",
		metric.WithDescription("arrays currently in the matrix live set"))
	if err != nil {
		return nil, err
	}
	return &Metrics{tasks: tasks, fires: fires, evictions: evictions, arrays: arrays}, nil
}

// TaskExecuted records n drained tasks.
func (m *Metrics) TaskExecuted(n int64) {
	if m != nil {
		m.tasks.Add(context.Background(), n)
	}
}

// LinkFired records n fired link callbacks.
func (m *Metrics) LinkFired(n int64) {
	if m != nil {
		m.fires.Add(context.Background(), n)
	}
}

// ArrayAdded records an array joining the live set.
func (m *Metrics) ArrayAdded() {
	if m != nil {
		m.arrays.Add(context.Background(), 1)
	}
}

// ArrayEvicted records an array leaving the live set.
func (m *Metrics) ArrayEvicted() {
	if m != nil {
		m.arrays.Add(context.Background(), -1)
		m.evictions.Add(context.Background(), 1)
	}
}
