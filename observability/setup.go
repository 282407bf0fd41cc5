package observability

import (
	"context"
)

// Setup registers metrics and starts tracing. It returns the tracer shutdown.
func Setup(serviceName, otlpEndpoint string) func(context.Context) error {
	InitMetrics()
	return InitTracing(serviceName, otlpEndpoint)
}
