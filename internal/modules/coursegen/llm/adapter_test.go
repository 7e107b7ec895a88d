package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/observability"
	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/platform/logger"
	"github.com/yungbote/omya-backend/internal/platform/ratelimit"
	"github.com/yungbote/omya-backend/internal/platform/retry"
)

type stubGen struct {
	mu      sync.Mutex
	calls   int
	failFor int
	out     string
	err     error
}

func (s *stubGen) GenerateText(ctx context.Context, messages []domain.ChatMessage, model string, temperature float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failFor < 0 || s.calls <= s.failFor {
		if s.err != nil {
			return "", s.err
		}
		return "", errors.New("provider 503")
	}
	return s.out, nil
}

func recordingPolicy(delays *[]time.Duration) retry.Policy {
	p := retry.Default()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return p
}

func msgs() []domain.ChatMessage {
	return []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}
}

func TestGenerateRetryExhaustion(t *testing.T) {
	var delays []time.Duration
	gen := &stubGen{failFor: -1}
	m := observability.New()
	a := New(Deps{Log: logger.Nop(), Gen: gen, Retry: recordingPolicy(&delays), Metrics: m})

	_, err := a.Generate(context.Background(), Request{Stage: "course", Model: "gpt-4o", Messages: msgs()})
	if err == nil {
		t.Fatalf("Generate: expected error")
	}
	if gen.calls != 4 {
		t.Fatalf("calls: want=4 got=%d", gen.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays: want=%v got=%v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay[%d]: want=%v got=%v", i, want[i], delays[i])
		}
	}
	if !apierr.IsKind(err, apierr.KindTransientProvider) {
		t.Fatalf("kind: want=transient_provider got=%v", apierr.KindOf(err))
	}
	if cause := errors.Unwrap(err); cause == nil || cause.Error() != "provider 503" {
		t.Fatalf("root cause: got=%v", cause)
	}
}

func TestGenerateRecoversAfterFailures(t *testing.T) {
	var delays []time.Duration
	gen := &stubGen{failFor: 2, out: "  - point\n"}
	a := New(Deps{Log: logger.Nop(), Gen: gen, Retry: recordingPolicy(&delays)})

	out, err := a.Generate(context.Background(), Request{Stage: "summarize", Messages: msgs()})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "- point" {
		t.Fatalf("out: got=%q", out)
	}
	if gen.calls != 3 || len(delays) != 2 {
		t.Fatalf("calls=%d delays=%v", gen.calls, delays)
	}
}

func TestGenerateEmptyCompletionIsRetried(t *testing.T) {
	var delays []time.Duration
	gen := &stubGen{failFor: 0, out: "   "}
	a := New(Deps{Log: logger.Nop(), Gen: gen, Retry: recordingPolicy(&delays)})
	if _, err := a.Generate(context.Background(), Request{Stage: "quiz", Messages: msgs()}); err == nil {
		t.Fatalf("Generate: expected error for blank completion")
	}
	if gen.calls != 4 {
		t.Fatalf("calls: want=4 got=%d", gen.calls)
	}
}

func TestGenerateDoesNotRetryValidation(t *testing.T) {
	var delays []time.Duration
	gen := &stubGen{failFor: -1, err: apierr.Validation("bad prompt")}
	a := New(Deps{Log: logger.Nop(), Gen: gen, Retry: recordingPolicy(&delays)})
	_, err := a.Generate(context.Background(), Request{Stage: "course", Messages: msgs()})
	if !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("kind: want=validation got=%v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("calls: want=1 got=%d", gen.calls)
	}
}

func TestGenerateRejectsEmptyMessages(t *testing.T) {
	gen := &stubGen{out: "x"}
	a := New(Deps{Log: logger.Nop(), Gen: gen, Retry: retry.Default()})
	if _, err := a.Generate(context.Background(), Request{Stage: "course"}); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("want validation error, got=%v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("provider called with no messages")
	}
}

func TestGenerateHoldsLimiterSlot(t *testing.T) {
	lim := ratelimit.NewLocal(1)
	release, _ := lim.Acquire(context.Background())
	gen := &stubGen{out: "ok"}
	p := retry.Default()
	p.MaxAttempts = 1
	a := New(Deps{Log: logger.Nop(), Gen: gen, Limiter: lim, Retry: p})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := a.Generate(ctx, Request{Stage: "course", Messages: msgs()}); err == nil {
		t.Fatalf("Generate: expected limiter timeout while slot held")
	}
	if gen.calls != 0 {
		t.Fatalf("provider called without a slot")
	}
	release()

	if out, err := a.Generate(context.Background(), Request{Stage: "course", Messages: msgs()}); err != nil || out != "ok" {
		t.Fatalf("Generate after release: out=%q err=%v", out, err)
	}
}
