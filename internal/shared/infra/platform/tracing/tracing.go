package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// NoTraceID se usa cuando no hay un span activo en el contexto.
const NoTraceID = "N/A_TRACE_ID"

// TraceIDFromContext devuelve el trace id del span activo (local o remoto).
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return NoTraceID
	}
	return sc.TraceID().String()
}

// OrDefault normaliza un trace id recibido en metadata.
func OrDefault(traceID string) string {
	if traceID == "" {
		return NoTraceID
	}
	return traceID
}

// Setup registra el propagador W3C (traceparent/tracestate) como global.
func Setup() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// ExtractHTTP recupera el contexto de traza de las cabeceras entrantes.
func ExtractHTTP(ctx context.Context, header http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}

// InjectHTTP propaga el contexto de traza en una petición saliente.
func InjectHTTP(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}
