// Package tracing provides OpenTelemetry tracing integration.
//
// It offers a package tracer (GetTracer) and an HTTP Middleware that starts a
// server span per request, continues trace context from incoming headers via
// the global propagator, and returns the trace ID in X-Trace-Id. It installs
// no TracerProvider or exporter; spans go to whatever provider is set with
// otel.SetTracerProvider. Database queries are not traced.
//
// Example usage:
//
//	import "feedmesh/internal/observability/tracing"
//
//	func main() {
//	    handler := tracing.Middleware(mux)
//	    http.ListenAndServe(":8080", handler)
//	}
//
//	func processRequest(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "process-request")
//	    defer span.End()
//	    // ... process request ...
//	}
package tracing
