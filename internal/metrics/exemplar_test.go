package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestGetExemplar(t *testing.T) {
	ctx := context.Background()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatalf("TraceIDFromHex failed: %v", err)
	}
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatalf("SpanIDFromHex failed: %v", err)
	}
	spanContext := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
		Remote:  true,
	})
	ctx = trace.ContextWithSpanContext(ctx, spanContext)

	labels := getExemplar(ctx)
	assert.NotNil(t, labels)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", labels["trace_id"])
}

func TestGetExemplarNoSpan(t *testing.T) {
	assert.Nil(t, getExemplar(context.Background()))
}

func TestObserveCompressionWithSpanContextRecordsHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistryWith(reg)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanContext := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, Remote: true})
	ctx := trace.ContextWithSpanContext(context.Background(), spanContext)

	r.ObserveCompression(ctx, "BZIP2", time.Millisecond)

	metricFamilies, err := reg.Gather()
	assert.NoError(t, err)
	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "dedupstream_compression_duration_seconds" {
			found = true
		}
	}
	assert.True(t, found)
}
