package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/omya-backend/internal/data/db"
	"github.com/yungbote/omya-backend/internal/data/repos"
	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/chunk"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/llm"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/output"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/pipeline"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/segment"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/source"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/summarize"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/synth"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/transcribe"
	"github.com/yungbote/omya-backend/internal/observability"
	"github.com/yungbote/omya-backend/internal/platform/dbctx"
	"github.com/yungbote/omya-backend/internal/platform/gcp"
	"github.com/yungbote/omya-backend/internal/platform/gemini"
	"github.com/yungbote/omya-backend/internal/platform/localmedia"
	"github.com/yungbote/omya-backend/internal/platform/logger"
	"github.com/yungbote/omya-backend/internal/platform/openai"
	"github.com/yungbote/omya-backend/internal/platform/ratelimit"
	"github.com/yungbote/omya-backend/internal/platform/retry"
)

// App owns every long-lived dependency of the course generator.
type App struct {
	Log          *logger.Logger
	Cfg          Config
	Metrics      *observability.Metrics
	Orchestrator *pipeline.Orchestrator
	Writer       *output.Writer
	Loader       *source.Loader

	media   localmedia.Tools
	runs    repos.CourseRunRepo
	closers []func() error
	cancel  context.CancelFunc
}

func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	a := &App{Log: log, Cfg: cfg, cancel: cancel}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	otelShutdown := observability.InitOTel(ctx, log, cfg.otel())
	a.closers = append(a.closers, func() error {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		return otelShutdown(sctx)
	})
	a.Metrics = observability.Init(cfg.Metrics || strings.TrimSpace(cfg.HTTPAddr) != "")

	limiter, err := a.buildLimiter(ctx)
	if err != nil {
		return nil, err
	}
	policy := retry.Policy{MaxAttempts: cfg.MaxRetries, BackoffBase: cfg.RetryBackoff}

	gen, err := a.buildGenerator(ctx, limiter, policy)
	if err != nil {
		return nil, err
	}
	stt, err := a.buildTranscriber(ctx, limiter, policy)
	if err != nil {
		return nil, err
	}

	a.media = localmedia.New(log, localmedia.Options{
		FFmpegPath:  cfg.Media.FFmpegPath,
		FFprobePath: cfg.Media.FFprobePath,
		Bitrate:     fmt.Sprintf("%dk", segment.DefaultBitrateKbps),
	})
	chunker := chunk.New(chunk.Config{
		SentencesPerChunk: cfg.SentencesPerChunk,
		TargetTokens:      cfg.TokensPerChunk,
	}, chunk.NewEstimator(log, cfg.Tokenizer))

	deps := pipeline.Deps{
		Log:         log,
		Segmenter:   segment.New(log, a.media, segment.Config{
			MaxMB:       cfg.MaxAudioMB,
			BitrateKbps: segment.DefaultBitrateKbps,
		}),
		Transcriber: stt,
		Chunker:     chunker,
		Summarizer: summarize.New(log, gen, summarize.Options{
			Model:       cfg.Models.Summary,
			Concurrency: cfg.MapConcurrency,
		}),
		Synth: synth.New(log, gen, synth.Options{
			CourseModel:    cfg.Models.Course,
			QuizModel:      cfg.Models.Quiz,
			ExercisesModel: cfg.Models.Exercises,
			QuizQuestions:  cfg.QuizQuestions,
			Exercises:      cfg.Exercises,
			QuizValidation: synth.QuizValidation(cfg.QuizValidation),
		}),
		Metrics: a.Metrics,
	}

	runsDB, err := db.Open(log, cfg.RunsDB)
	if err != nil {
		return nil, fmt.Errorf("open runs db: %w", err)
	}
	if runsDB != nil {
		a.closers = append(a.closers, runsDB.Close)
		a.runs = repos.NewCourseRunRepo(runsDB.DB(), log)
		deps.Runs = a.runs
	}

	a.Orchestrator = pipeline.New(deps, pipeline.Options{
		Models:              cfg.Models,
		DeleteOriginalAudio: cfg.DeleteOriginalAudio,
		DefaultLanguage:     cfg.Language,
	})

	store, err := a.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Writer = output.NewWriter(log, store)
	a.Loader = source.NewLoader(log)

	log.Info("omya ready",
		"generation_provider", cfg.GenerationProvider,
		"transcribe_provider", cfg.TranscribeProvider,
		"limiter", cfg.Limiter,
		"output_store", cfg.Output.Store,
		"runs_db", cfg.RunsDB.Driver,
	)
	ok = true
	return a, nil
}

func (a *App) buildLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	if a.Cfg.Limiter != LimiterRedis {
		return ratelimit.NewLocal(a.Cfg.ProviderConcurrency), nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     a.Cfg.Redis.Addr,
		Password: a.Cfg.Redis.Password,
		DB:       a.Cfg.Redis.DB,
	})
	a.closers = append(a.closers, rdb.Close)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	a.Metrics.StartRedisCollector(ctx, a.Log, rdb, 15*time.Second)
	return ratelimit.NewRedis(a.Log, rdb, ratelimit.RedisConfig{Limit: a.Cfg.ProviderConcurrency})
}

func (a *App) buildGenerator(ctx context.Context, limiter ratelimit.Limiter, policy retry.Policy) (*llm.Adapter, error) {
	var client llm.TextGenerator
	switch a.Cfg.GenerationProvider {
	case ProviderGemini:
		c, err := gemini.NewClient(ctx, a.Log, a.Cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		client = c
	default:
		c, err := openai.NewClient(a.Log, a.openAIConfig())
		if err != nil {
			return nil, err
		}
		client = c
	}
	return llm.New(llm.Deps{
		Log:      a.Log,
		Gen:      client,
		Provider: a.Cfg.GenerationProvider,
		Limiter:  limiter,
		Retry:    policy,
		Metrics:  a.Metrics,
	}), nil
}

func (a *App) buildTranscriber(ctx context.Context, limiter ratelimit.Limiter, policy retry.Policy) (*transcribe.Adapter, error) {
	deps := transcribe.Deps{
		Log:      a.Log,
		Provider: a.Cfg.TranscribeProvider,
		Limiter:  limiter,
		Retry:    policy,
		Metrics:  a.Metrics,
	}
	switch a.Cfg.TranscribeProvider {
	case ProviderGCP:
		scfg := gcp.SpeechConfig{LanguageCode: a.Cfg.SpeechLanguageCode}
		if bucket := strings.TrimSpace(a.Cfg.SpeechStagingBucket); bucket != "" {
			staging, err := gcp.NewBucketService(ctx, a.Log, gcp.BucketConfig{
				Bucket:       bucket,
				EmulatorHost: a.Cfg.Output.GCSEmulatorHost,
			})
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, staging.Close)
			scfg.Staging = staging
		}
		sc, err := gcp.NewSpeechClient(ctx, a.Log, scfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sc.Close)
		deps.Speech = sc
		deps.Retryable = gcp.IsRetryableCode
	default:
		c, err := openai.NewClient(a.Log, a.openAIConfig())
		if err != nil {
			return nil, err
		}
		deps.Speech = c
	}
	return transcribe.New(deps), nil
}

func (a *App) buildStore(ctx context.Context) (output.Store, error) {
	if a.Cfg.Output.Store != StoreGCS {
		return output.LocalStore{}, nil
	}
	bucket, err := gcp.NewBucketService(ctx, a.Log, gcp.BucketConfig{
		Bucket:       a.Cfg.Output.GCSBucket,
		Prefix:       a.Cfg.Output.GCSPrefix,
		EmulatorHost: a.Cfg.Output.GCSEmulatorHost,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, bucket.Close)
	return output.BucketStore{Bucket: bucket}, nil
}

func (a *App) openAIConfig() openai.Config {
	return openai.Config{
		APIKey:  a.Cfg.OpenAI.APIKey,
		BaseURL: a.Cfg.OpenAI.BaseURL,
		Timeout: time.Duration(a.Cfg.OpenAI.TimeoutSeconds) * time.Second,
	}
}

// CheckMedia verifies that ffmpeg and ffprobe can be executed.
func (a *App) CheckMedia(ctx context.Context) error {
	return a.media.AssertReady(ctx)
}

// RecentRuns lists run records newest first. It returns nil when run
// tracking is disabled.
func (a *App) RecentRuns(ctx context.Context, limit int) ([]*domain.CourseRun, error) {
	if a.runs == nil {
		return nil, nil
	}
	return a.runs.ListRecent(dbctx.New(ctx), limit)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.Log != nil {
			a.Log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
	if a.Log != nil {
		a.Log.Sync()
	}
}

// ReadyCheck reports whether the media tools are usable.
func (a *App) ReadyCheck(ctx context.Context) func() error {
	return func() error {
		if err := a.CheckMedia(ctx); err != nil {
			return fmt.Errorf("media tools unavailable: %s", strings.TrimSpace(err.Error()))
		}
		return nil
	}
}
