package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage("summarize", "success", time.Second)
	m.ObserveProviderRequest("openai", "course", "success", time.Second)
	m.IncProviderRetry("openai", "course")
	m.IncRun("text", "success")
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("WritePrometheus nil: %v", err)
	}
	rec := httptest.NewRecorder()
	m.WriteHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 503 {
		t.Fatalf("status: want=503 got=%d", rec.Code)
	}
}

func TestWritePrometheus(t *testing.T) {
	m := New()
	m.ObserveStage("transcribe", "success", 3*time.Second)
	m.ObserveProviderRequest("openai", "summarize", "error", 200*time.Millisecond)
	m.ObserveProviderRequest("openai", "summarize", "success", 300*time.Millisecond)
	m.IncProviderRetry("openai", "summarize")
	m.IncRun("audio", "success")

	if got := m.providerRequests.Value("openai", "summarize", "success"); got != 1 {
		t.Fatalf("provider requests: want=1 got=%v", got)
	}
	if got := m.stageDuration.Count("transcribe", "success"); got != 1 {
		t.Fatalf("stage count: want=1 got=%d", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`omya_stage_duration_seconds_bucket{stage="transcribe",status="success",le="5"} 1`,
		`omya_stage_duration_seconds_bucket{stage="transcribe",status="success",le="+Inf"} 1`,
		`omya_provider_retries_total{provider="openai",stage="summarize"} 1.000000`,
		`omya_runs_total{source="audio",status="success"} 1.000000`,
		"# TYPE omya_redis_up gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"stage"}, []string{"a\"b\n"})
	if got != `{stage="a\"b\n"}` {
		t.Fatalf("labelString: got=%s", got)
	}
	if got := labelString([]string{"a", "b"}, []string{"x"}); got != `{a="x",b="unknown"}` {
		t.Fatalf("missing label: got=%s", got)
	}
}

func TestSpansWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "pipeline.run")
	EndSpan(span, errors.New("boom"))
	_ = TraceID(ctx)
}

func TestParseHeaders(t *testing.T) {
	h := ParseHeaders("api-key=abc, x=1,bad,=y")
	if len(h) != 2 || h["api-key"] != "abc" || h["x"] != "1" {
		t.Fatalf("ParseHeaders: got=%v", h)
	}
	if ParseHeaders("") != nil {
		t.Fatalf("ParseHeaders empty: want nil")
	}
}
