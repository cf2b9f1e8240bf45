package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	assert.Equal(t, NoTraceID, TraceIDFromContext(context.Background()))
}

func TestExtractThenInject_RoundTripsTraceparent(t *testing.T) {
	Setup()

	in := http.Header{}
	in.Set("traceparent", traceparent)
	ctx := ExtractHTTP(context.Background(), in)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", TraceIDFromContext(ctx))

	out := http.Header{}
	InjectHTTP(ctx, out)
	assert.Equal(t, traceparent, out.Get("traceparent"))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, NoTraceID, OrDefault(""))
	assert.Equal(t, "abc", OrDefault("abc"))
}
