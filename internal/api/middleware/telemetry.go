package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry starts an OTel span per request named after the route path,
// following the teacher's internal/api/middleware telemetry span idiom.
// Safe to mount even when tracing is disabled (telemetry.Init returns a
// no-op TracerProvider in that case).
func Telemetry(next http.Handler) http.Handler {
	tracer := otel.Tracer("cognition-core")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
