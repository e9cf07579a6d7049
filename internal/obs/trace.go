package obs

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "gestoria.cloud/authz"

// Tracer returns the tracer used for authorization spans. Without a
// configured provider the global no-op implementation is used.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
