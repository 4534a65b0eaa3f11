package observe

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetupTracing_DisabledIsNoop(t *testing.T) {
	shutdown, err := SetupTracing(false, "test", nil)
	if err != nil {
		t.Fatalf("SetupTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestSetupTracing_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing(true, "test", &buf)
	if err != nil {
		t.Fatalf("SetupTracing() error = %v", err)
	}

	_, span := otel.Tracer("observe-test").Start(context.Background(), "unit-span")
	span.End()

	// Shutdown flushes the batch exporter.
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), "unit-span") {
		t.Errorf("exported output missing span name, got %q", buf.String())
	}
}
