package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

const meterName = "github.com/platinummonkey/procvfs"

// OTelMetrics holds OpenTelemetry metric instruments. Like Metrics it is a
// plugins.Statistics implementation.
type OTelMetrics struct {
	dispatchCalls    metric.Int64Counter
	dispatchDuration metric.Float64Histogram
	modules          metric.Int64Gauge
}

// NewOTelMetrics creates instruments on provider, or on the global meter
// provider when provider is nil
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &OTelMetrics{}
	var err error

	m.dispatchCalls, err = meter.Int64Counter(
		"procvfs.dispatch.calls",
		metric.WithDescription("Total number of calls dispatched to modules"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch calls counter: %w", err)
	}

	m.dispatchDuration, err = meter.Float64Histogram(
		"procvfs.dispatch.duration",
		metric.WithDescription("Duration of calls dispatched to modules"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch duration histogram: %w", err)
	}

	m.modules, err = meter.Int64Gauge(
		"procvfs.modules",
		metric.WithDescription("Number of registered modules"),
		metric.WithUnit("{module}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create modules gauge: %w", err)
	}

	return m, nil
}

// CallStart implements plugins.Statistics
func (m *OTelMetrics) CallStart() time.Time {
	return time.Now()
}

// CallEnd implements plugins.Statistics
func (m *OTelMetrics) CallEnd(op plugins.Operation, start time.Time) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("procvfs.op", op.String()))

	m.dispatchCalls.Add(ctx, 1, attrs)
	m.dispatchDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

// RecordModules records the registry population
func (m *OTelMetrics) RecordModules(ctx context.Context, count int) {
	m.modules.Record(ctx, int64(count))
}

// TeeStatistics fans statistics out to every non-nil hook
func TeeStatistics(hooks ...plugins.Statistics) plugins.Statistics {
	var live []plugins.Statistics
	for _, h := range hooks {
		if h != nil {
			live = append(live, h)
		}
	}
	switch len(live) {
	case 0:
		return plugins.NopStatistics
	case 1:
		return live[0]
	}
	return teeStatistics(live)
}

type teeStatistics []plugins.Statistics

func (t teeStatistics) CallStart() time.Time {
	start := time.Now()
	for _, h := range t {
		h.CallStart()
	}
	return start
}

func (t teeStatistics) CallEnd(op plugins.Operation, start time.Time) {
	for _, h := range t {
		h.CallEnd(op, start)
	}
}
