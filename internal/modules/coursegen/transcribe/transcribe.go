package transcribe

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

const stage = "transcribe"

// SpeechToText is a single-attempt transcription of one audio file.
// openai.Client and gcp.SpeechClient satisfy it.
type SpeechToText interface {
	Transcribe(ctx context.Context, filePath string, model string) (string, error)
}

type Deps struct {
	Log      *logger.Logger
	Speech   SpeechToText
	Provider string
	Limiter  ratelimit.Limiter
	Retry    retry.Policy
	Metrics  *observability.Metrics
	// Retryable narrows which provider errors get another attempt, e.g.
	// gcp.IsRetryableCode. Nil retries every non-permanent error.
	Retryable func(error) bool
}

type Adapter struct {
	log       *logger.Logger
	speech    SpeechToText
	provider  string
	limiter   ratelimit.Limiter
	policy    retry.Policy
	metrics   *observability.Metrics
	retryable func(error) bool
}

func New(deps Deps) *Adapter {
	a := &Adapter{
		log:       deps.Log.With("service", "TranscriptionAdapter"),
		speech:    deps.Speech,
		provider:  deps.Provider,
		limiter:   deps.Limiter,
		policy:    deps.Retry,
		metrics:   deps.Metrics,
		retryable: deps.Retryable,
	}
	if a.provider == "" {
		a.provider = "openai"
	}
	if a.limiter == nil {
		a.limiter = ratelimit.Nop{}
	}
	return a
}

// Transcribe returns the transcript of one segment. The input file is left
// in place.
func (a *Adapter) Transcribe(ctx context.Context, filePath, model string) (string, error) {
	log := a.log.With("file", filePath, "model", model, "run_id", ctxutil.RunID(ctx))

	policy := a.policy
	policy.Retryable = func(err error) bool {
		if errors.Is(err, context.Canceled) || apierr.Permanent(err) {
			return false
		}
		if a.retryable != nil {
			return a.retryable(err)
		}
		return true
	}
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		a.metrics.IncProviderRetry(a.provider, stage)
		log.Warn("transcription retrying", "attempt", attempt, "sleep", delay.String(), "error", err)
	}

	text, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return a.once(ctx, filePath, model)
	})
	if err != nil {
		if apierr.Permanent(err) || errors.Is(err, context.Canceled) {
			return "", err
		}
		log.Error("transcription failed", "error", err)
		return "", apierr.Transient(stage, err)
	}
	return text, nil
}

func (a *Adapter) once(ctx context.Context, filePath, model string) (string, error) {
	waitStart := time.Now()
	release, err := a.limiter.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire provider slot: %w", err)
	}
	defer release()
	a.metrics.ObserveLimiterWait(a.provider, time.Since(waitStart))

	start := time.Now()
	text, err := a.speech.Transcribe(ctx, filePath, model)
	status := "success"
	if err != nil {
		status = "error"
	}
	a.metrics.ObserveProviderRequest(a.provider, stage, status, time.Since(start))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// TranscribeAll transcribes segments one after another in sequence order and
// joins the texts with newlines. The first failing segment aborts the whole
// call.
func (a *Adapter) TranscribeAll(ctx context.Context, segments []domain.AudioSegment, model string) (string, error) {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		text, err := a.Transcribe(ctx, seg.FilePath, model)
		if err != nil {
			return "", err
		}
		a.log.Debug("segment transcribed", "index", seg.SequenceIndex, "chars", len(text))
		parts = append(parts, text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}
