package observe

import (
	"context"
	"errors"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is reported when ProviderConfig.ServiceName is empty.
const DefaultServiceName = "vilakkam"

// ProviderConfig describes the service to the OpenTelemetry SDK. The fields
// map onto the service.* and deployment.* resource attributes.
type ProviderConfig struct {
	// ServiceName is service.name. Default: "vilakkam".
	ServiceName string

	// ServiceVersion is service.version, usually the build version.
	ServiceVersion string

	// ServiceNamespace is service.namespace. Omitted when empty.
	ServiceNamespace string

	// InstanceID is service.instance.id. Defaults to the host name so
	// replicas behind one load balancer are told apart.
	InstanceID string

	// Environment is deployment.environment (e.g. "production"). Omitted
	// when empty.
	Environment string

	// TraceExporter receives finished spans. When nil, spans are recorded
	// for correlation IDs but not exported.
	TraceExporter sdktrace.SpanExporter
}

// resourceAttributes returns the service attributes for cfg with defaults
// applied.
func resourceAttributes(cfg ProviderConfig) []attribute.KeyValue {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	instance := cfg.InstanceID
	if instance == "" {
		instance, _ = os.Hostname()
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.ServiceNamespace != "" {
		attrs = append(attrs, semconv.ServiceNamespace(cfg.ServiceNamespace))
	}
	if instance != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(instance))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	return attrs
}

// InitProvider registers global meter and tracer providers for the service:
//
//   - a [sdkmetric.MeterProvider] read by the Prometheus exporter, so the
//     vilakkam.* instruments appear on the metrics route;
//   - a [sdktrace.TracerProvider] batching to cfg.TraceExporter, if any.
//
// The returned function flushes and closes both. Call it during shutdown.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, resourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}

	var shutdownFuncs []func(context.Context) error

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if e := fn(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		return errors.Join(errs...)
	}, nil
}
