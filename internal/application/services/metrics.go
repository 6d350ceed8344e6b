package services

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/nexuscrm/workflow"

// EngineMetrics records engine activity through the global MeterProvider.
// Without a configured provider the counters are no-ops.
type EngineMetrics struct {
	instancesStarted  metric.Int64Counter
	instancesFinished metric.Int64Counter
	tasksCompleted    metric.Int64Counter
	sweepProcessed    metric.Int64Counter
}

// NewEngineMetrics creates the engine counters from otel.GetMeterProvider().
func NewEngineMetrics() *EngineMetrics {
	return newEngineMetrics(otel.Meter(meterName))
}

func newEngineMetrics(meter metric.Meter) *EngineMetrics {
	fallback := noop.NewMeterProvider().Meter(meterName)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.Printf("⚠️ Metrics: failed to create %s: %v", name, err)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	return &EngineMetrics{
		instancesStarted:  counter("workflow.instances.started", "Workflow instances created"),
		instancesFinished: counter("workflow.instances.finished", "Workflow instances that reached a terminal status"),
		tasksCompleted:    counter("workflow.tasks.completed", "Workflow tasks completed"),
		sweepProcessed:    counter("workflow.sweep.processed", "Instances visited by the periodic sweep"),
	}
}

func (m *EngineMetrics) InstanceStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.instancesStarted.Add(ctx, 1)
}

func (m *EngineMetrics) InstanceFinished(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.instancesFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *EngineMetrics) TaskCompleted(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.tasksCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (m *EngineMetrics) SweepProcessed(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.sweepProcessed.Add(ctx, int64(n))
}
