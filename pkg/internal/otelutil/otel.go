// Package otelutil sets up the OpenTelemetry SDK of the vanish proxy.
package otelutil

import (
	"context"
	"os"

	"github.com/go-logr/logr"
	"github.com/honeycombio/otel-config-go/otelconfig"

	"go.minekube.com/vanish/pkg/version"
)

// ServiceName is the OpenTelemetry service name of the proxy.
const ServiceName = "vanish"

// Enabled reports whether an OTLP exporter endpoint is configured
// through the standard OTEL_* environment variables.
func Enabled() bool {
	if os.Getenv("OTEL_SDK_DISABLED") == "true" {
		return false
	}
	for _, k := range []string{
		"OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT",
		"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT",
	} {
		if os.Getenv(k) != "" {
			return true
		}
	}
	return false
}

// Init configures the global meter and tracer providers from the
// OTEL_* environment variables. It is a no-op returning a no-op cleanup
// if no exporter endpoint is configured.
func Init(ctx context.Context) (cleanup func(), err error) {
	if !Enabled() {
		return func() {}, nil
	}
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(ServiceName),
		otelconfig.WithServiceVersion(version.String()),
	)
	if err != nil {
		return nil, err
	}
	logr.FromContextOrDiscard(ctx).Info("enabled OpenTelemetry export")
	return shutdown, nil
}
