package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

// Resource attributes describing the system modules are told they run on
const (
	SystemTypeKey  = attribute.Key("procvfs.system_type")
	MemoryModelKey = attribute.Key("procvfs.memory_model")
)

const (
	exporterTimeout       = 10 * time.Second
	defaultExportInterval = 10 * time.Second
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint"`
	ServiceName    string `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string `yaml:"service_version" mapstructure:"service_version"`
	Insecure       bool   `yaml:"insecure" mapstructure:"insecure"`

	// SampleRatio is the share of root traces kept; 0 or 1 keeps all
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
	// ExportInterval is how often metrics are pushed
	ExportInterval time.Duration `yaml:"export_interval" mapstructure:"export_interval"`
}

// sampler keeps the parent's decision and samples new traces by ratio
func (c OTelConfig) sampler() sdktrace.Sampler {
	if c.SampleRatio <= 0 || c.SampleRatio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
}

func (c OTelConfig) exportInterval() time.Duration {
	if c.ExportInterval <= 0 {
		return defaultExportInterval
	}
	return c.ExportInterval
}

// OTelProviders holds OpenTelemetry providers for shutdown
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

// NewResource describes this process: the service, the host it runs on and
// the system identity handed to every module descriptor
func NewResource(ctx context.Context, cfg OTelConfig, system plugins.SystemInfo) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	}
	if system.SystemType != "" {
		attrs = append(attrs, SystemTypeKey.String(system.SystemType))
	}
	if system.MemoryModel != "" {
		attrs = append(attrs, MemoryModelKey.String(system.MemoryModel))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
	)
	if err != nil && res == nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}
	// partial resources are usable; detectors that fail only drop their own
	// attributes
	return res, nil
}

// InitOTel installs OTLP tracer and meter providers globally so loader spans
// and OTelMetrics instruments are exported. It returns nil providers when
// disabled.
func InitOTel(ctx context.Context, cfg OTelConfig, system plugins.SystemInfo, logger *logrus.Logger) (*OTelProviders, error) {
	if !cfg.Enabled {
		logger.Debug("OpenTelemetry is disabled")
		return nil, nil
	}

	logger.WithFields(logrus.Fields{
		"endpoint":     cfg.Endpoint,
		"system_type":  system.SystemType,
		"memory_model": system.MemoryModel,
	}).Info("Initializing OpenTelemetry")

	res, err := NewResource(ctx, cfg, system)
	if err != nil {
		return nil, err
	}

	var dial []grpc.DialOption
	if cfg.Insecure {
		dial = append(dial, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	tracerProvider, err := newTracerProvider(ctx, cfg, res, dial)
	if err != nil {
		return nil, err
	}
	meterProvider, err := newMeterProvider(ctx, cfg, res, dial)
	if err != nil {
		if shutdownErr := tracerProvider.Shutdown(ctx); shutdownErr != nil {
			logger.WithError(shutdownErr).Warn("Tracer provider shutdown after meter provider error failed")
		}
		return nil, err
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Debug("OpenTelemetry providers installed")
	return &OTelProviders{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
	}, nil
}

func newTracerProvider(ctx context.Context, cfg OTelConfig, res *resource.Resource, dial []grpc.DialOption) (*sdktrace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterTimeout)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(dial...),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(cfg.sampler()),
	), nil
}

func newMeterProvider(ctx context.Context, cfg OTelConfig, res *resource.Resource, dial []grpc.DialOption) (*metric.MeterProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterTimeout)
	defer cancel()

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithDialOption(dial...),
	)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter,
			metric.WithInterval(cfg.exportInterval()),
		)),
	), nil
}

// ShutdownOTel flushes and stops both providers. Both are attempted even
// when the first fails.
func ShutdownOTel(ctx context.Context, providers *OTelProviders, logger *logrus.Logger) error {
	if providers == nil {
		return nil
	}

	steps := []struct {
		name     string
		shutdown func(context.Context) error
	}{
		{"tracer provider", nil},
		{"meter provider", nil},
	}
	if providers.TracerProvider != nil {
		steps[0].shutdown = providers.TracerProvider.Shutdown
	}
	if providers.MeterProvider != nil {
		steps[1].shutdown = providers.MeterProvider.Shutdown
	}

	var errs []error
	for _, step := range steps {
		if step.shutdown == nil {
			continue
		}
		if err := step.shutdown(ctx); err != nil {
			logger.WithError(err).Errorf("Failed to shut down %s", step.name)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		logger.Debugf("Shut down %s", step.name)
	}
	return errors.Join(errs...)
}

// UpdateLoggerWithTraceContext adds trace context to entry
func UpdateLoggerWithTraceContext(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return entry
	}

	spanCtx := span.SpanContext()
	return entry.WithFields(logrus.Fields{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	})
}
