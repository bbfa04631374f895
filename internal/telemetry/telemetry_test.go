package telemetry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInstrumenterRecordsRequestSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(
		Config{ServiceName: "reqdeck-test", Version: "test"},
		WithSpanProcessor(recorder),
	)
	if err != nil {
		t.Fatalf("new instrumenter: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Shutdown(context.Background())
	})

	httpReq, err := http.NewRequestWithContext(
		context.Background(), http.MethodGet, "https://example.com/api/health", nil,
	)
	if err != nil {
		t.Fatalf("build http request: %v", err)
	}

	ctx, span := inst.Start(context.Background(), RequestStart{Name: "health", HTTPRequest: httpReq})
	if ctx == nil || span == nil {
		t.Fatalf("expected span to be created")
	}
	span.End(RequestResult{StatusCode: 200, Duration: 120 * time.Millisecond})

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one ended span, got %d", len(spans))
	}
	if spans[0].Name() != "health" {
		t.Fatalf("unexpected span name %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Fatalf("unexpected status %v", spans[0].Status())
	}
}

func TestSpanErrorStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := New(Config{ServiceName: "reqdeck-test"}, WithSpanProcessor(recorder))
	if err != nil {
		t.Fatalf("new instrumenter: %v", err)
	}
	t.Cleanup(func() {
		_ = inst.Shutdown(context.Background())
	})

	httpReq, _ := http.NewRequest(http.MethodGet, "https://example.com/a", nil)

	_, span := inst.Start(context.Background(), RequestStart{HTTPRequest: httpReq})
	span.End(RequestResult{Err: errors.New("dial failed")})

	_, span = inst.Start(context.Background(), RequestStart{HTTPRequest: httpReq})
	span.End(RequestResult{StatusCode: 503})

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected two spans, got %d", len(spans))
	}
	for i, s := range spans {
		if s.Status().Code != codes.Error {
			t.Fatalf("span %d: expected error status, got %v", i, s.Status())
		}
	}
}
