package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig names the process in telemetry. dawvox has no collector to
// talk to, so the zero value is what the CLI uses apart from the version.
type ProviderConfig struct {
	// ServiceName defaults to "dawvox".
	ServiceName string

	ServiceVersion string

	// TraceExporter receives finished pipeline spans. Leave nil in normal
	// runs; spans then only supply the trace_id and span_id that
	// [Logger] attaches to log lines.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider installs the process-wide meter and tracer providers. Nothing
// is pushed off the machine: the pipeline instruments from [NewMetrics] land
// in the Prometheus default registry, and a local scraper reads them from the
// diagnostics server's /metrics route when diagnostics.listen_addr is set.
//
// Call the returned function on exit to flush both providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "dawvox"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}
