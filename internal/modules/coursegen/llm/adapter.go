// Package llm is the single gateway for text-generation calls: every stage
// goes through Adapter.Generate, which adds the global limiter, the shared
// retry policy and per-call metrics around a single-attempt provider client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/observability"
	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/platform/ctxutil"
	"github.com/yungbote/omya-backend/internal/platform/logger"
	"github.com/yungbote/omya-backend/internal/platform/ratelimit"
	"github.com/yungbote/omya-backend/internal/platform/retry"
)

// TextGenerator is a single-attempt completion call. openai.Client and
// gemini.Client satisfy it.
type TextGenerator interface {
	GenerateText(ctx context.Context, messages []domain.ChatMessage, model string, temperature float64) (string, error)
}

// Generator is what the pipeline stages depend on.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Request struct {
	// Stage labels logs and metrics: summarize, reduce, course, quiz, exercises.
	Stage       string
	Model       string
	Temperature float64
	Messages    []domain.ChatMessage
}

var errEmptyCompletion = errors.New("empty completion")

type Deps struct {
	Log      *logger.Logger
	Gen      TextGenerator
	Provider string
	Limiter  ratelimit.Limiter
	Retry    retry.Policy
	Metrics  *observability.Metrics
}

type Adapter struct {
	log      *logger.Logger
	gen      TextGenerator
	provider string
	limiter  ratelimit.Limiter
	policy   retry.Policy
	metrics  *observability.Metrics
}

func New(deps Deps) *Adapter {
	a := &Adapter{
		log:      deps.Log.With("service", "GenerationAdapter"),
		gen:      deps.Gen,
		provider: deps.Provider,
		limiter:  deps.Limiter,
		policy:   deps.Retry,
		metrics:  deps.Metrics,
	}
	if a.provider == "" {
		a.provider = "openai"
	}
	if a.limiter == nil {
		a.limiter = ratelimit.Nop{}
	}
	return a
}

// Generate runs one completion under the retry policy. After the final failed
// attempt the provider error is returned as a transient_provider error whose
// Unwrap yields the provider's own error.
func (a *Adapter) Generate(ctx context.Context, req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", apierr.Validation("generation request has no messages")
	}
	log := a.log.With("stage", req.Stage, "model", req.Model, "run_id", ctxutil.RunID(ctx))

	policy := a.policy
	policy.Retryable = retryable
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		a.metrics.IncProviderRetry(a.provider, req.Stage)
		log.Warn("generation retrying", "attempt", attempt, "sleep", delay.String(), "error", err)
	}

	out, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return a.once(ctx, req)
	})
	if err != nil {
		if apierr.Permanent(err) || errors.Is(err, context.Canceled) {
			return "", err
		}
		log.Error("generation failed", "error", err)
		return "", apierr.Transient(req.Stage, err)
	}
	return out, nil
}

func (a *Adapter) once(ctx context.Context, req Request) (string, error) {
	waitStart := time.Now()
	release, err := a.limiter.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire provider slot: %w", err)
	}
	defer release()
	a.metrics.ObserveLimiterWait(a.provider, time.Since(waitStart))

	start := time.Now()
	out, err := a.gen.GenerateText(ctx, req.Messages, req.Model, req.Temperature)
	if err == nil && strings.TrimSpace(out) == "" {
		err = errEmptyCompletion
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	a.metrics.ObserveProviderRequest(a.provider, req.Stage, status, time.Since(start))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !apierr.Permanent(err)
}
