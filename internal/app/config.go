package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/omya-backend/internal/data/db"
	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/chunk"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/synth"
	"github.com/yungbote/omya-backend/internal/observability"
	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/platform/envutil"
	"github.com/yungbote/omya-backend/internal/platform/gcp"
	"github.com/yungbote/omya-backend/internal/platform/openai"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderGCP    = "gcp"

	LimiterLocal = "local"
	LimiterRedis = "redis"

	StoreLocal = "local"
	StoreGCS   = "gcs"
)

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type OutputConfig struct {
	Store     string `yaml:"store"`
	GCSBucket string `yaml:"gcs_bucket"`
	GCSPrefix string `yaml:"gcs_prefix"`
	// GCSEmulatorHost points the storage client at a local emulator.
	GCSEmulatorHost string `yaml:"gcs_emulator_host"`
}

type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type MediaConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Headers     string  `yaml:"headers"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Environment string  `yaml:"environment"`
}

// Config is built once at start-up and never mutated afterwards.
type Config struct {
	LogMode  string          `yaml:"log_mode"`
	Language string          `yaml:"language"`
	Models   domain.ModelSet `yaml:"models"`

	MaxAudioMB          int     `yaml:"max_audio_mb"`
	SentencesPerChunk   int     `yaml:"sentences_per_chunk"`
	TokensPerChunk      int     `yaml:"tokens_per_chunk"`
	Tokenizer           string  `yaml:"tokenizer"`
	MaxRetries          int     `yaml:"max_retries"`
	RetryBackoff        float64 `yaml:"retry_backoff"`
	DeleteOriginalAudio bool    `yaml:"delete_original_audio"`
	QuizQuestions       int     `yaml:"quiz_questions"`
	Exercises           int     `yaml:"exercises"`
	MapConcurrency      int     `yaml:"map_concurrency"`
	QuizValidation      string  `yaml:"quiz_validation"`

	GenerationProvider  string      `yaml:"generation_provider"`
	TranscribeProvider  string      `yaml:"transcribe_provider"`
	ProviderConcurrency int         `yaml:"provider_concurrency"`
	Limiter             string      `yaml:"limiter"`
	Redis               RedisConfig `yaml:"redis"`

	OpenAI             OpenAIConfig `yaml:"openai"`
	GeminiAPIKey       string       `yaml:"gemini_api_key"`
	SpeechLanguageCode string       `yaml:"speech_language_code"`

	// SpeechStagingBucket holds segments above the Cloud Speech inline limit.
	SpeechStagingBucket string      `yaml:"speech_staging_bucket"`
	Media               MediaConfig `yaml:"media"`

	Output   OutputConfig `yaml:"output"`
	RunsDB   db.Config    `yaml:"runs_db"`
	Otel     OtelConfig   `yaml:"otel"`
	Metrics  bool         `yaml:"metrics_enabled"`
	HTTPAddr string       `yaml:"metrics_addr"`

	WatchConcurrency int `yaml:"watch_concurrency"`
}

// Gemini replacements for the OpenAI generation defaults.
const (
	GeminiCourseModel  = "gemini-2.5-pro"
	GeminiSummaryModel = "gemini-2.5-flash"
)

func DefaultConfig() Config {
	return Config{
		LogMode:  "development",
		Language: "fr",
		Models: domain.ModelSet{
			Course:     "gpt-4o",
			Summary:    "gpt-4o-mini",
			Quiz:       "gpt-4o",
			Exercises:  "gpt-4o",
			Transcribe: "whisper-1",
		},
		MaxAudioMB:          24,
		SentencesPerChunk:   chunk.DefaultSentencesPerChunk,
		TokensPerChunk:      chunk.DefaultTargetTokens,
		Tokenizer:           chunk.EstimatorTiktoken,
		MaxRetries:          4,
		RetryBackoff:        2.0,
		DeleteOriginalAudio: true,
		QuizQuestions:       synth.DefaultQuizQuestions,
		Exercises:           synth.DefaultExercises,
		MapConcurrency:      4,
		QuizValidation:      string(synth.QuizValidationRepair),
		GenerationProvider:  ProviderOpenAI,
		TranscribeProvider:  ProviderOpenAI,
		ProviderConcurrency: 8,
		Limiter:             LimiterLocal,
		SpeechLanguageCode:  "fr-FR",
		Output:              OutputConfig{Store: StoreLocal},
		RunsDB:              db.Config{Driver: db.DriverNone},
		Otel:                OtelConfig{SampleRatio: 1},
		WatchConcurrency:    2,
	}
}

// LoadConfig starts from the defaults, applies the YAML file named by
// OMYA_CONFIG_FILE when set, then environment variables, then validates.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if path := strings.TrimSpace(os.Getenv("OMYA_CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, apierr.Validation(fmt.Sprintf("parse config file %s: %v", path, err))
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)
	c.Language = envutil.String("OMYA_LANGUAGE", c.Language)

	c.Models.Course = envutil.String("OMYA_COURSE_MODEL", c.Models.Course)
	c.Models.Summary = envutil.String("OMYA_SUMMARY_MODEL", c.Models.Summary)
	c.Models.Quiz = envutil.String("OMYA_QCM_MODEL", c.Models.Quiz)
	c.Models.Exercises = envutil.String("OMYA_EXO_MODEL", c.Models.Exercises)
	c.Models.Transcribe = envutil.String("OMYA_TRANSCRIBE_MODEL", c.Models.Transcribe)

	c.MaxAudioMB = envutil.Int("OMYA_MAX_AUDIO_MB", c.MaxAudioMB)
	c.SentencesPerChunk = envutil.Int("OMYA_SENTENCES_PER_CHUNK", c.SentencesPerChunk)
	c.TokensPerChunk = envutil.Int("OMYA_TOKENS_PER_CHUNK", c.TokensPerChunk)
	c.Tokenizer = envutil.String("OMYA_TOKENIZER", c.Tokenizer)
	c.MaxRetries = envutil.Int("OMYA_MAX_RETRIES", c.MaxRetries)
	c.RetryBackoff = envutil.Float("OMYA_RETRY_BACKOFF", c.RetryBackoff)
	c.DeleteOriginalAudio = envutil.Bool("OMYA_DELETE_ORIGINAL_AUDIO", c.DeleteOriginalAudio)
	c.QuizQuestions = envutil.Int("OMYA_QUIZ_QUESTIONS", c.QuizQuestions)
	c.Exercises = envutil.Int("OMYA_EXERCISES", c.Exercises)
	c.MapConcurrency = envutil.Int("OMYA_MAP_CONCURRENCY", c.MapConcurrency)
	c.QuizValidation = envutil.String("OMYA_QUIZ_VALIDATION", c.QuizValidation)

	c.GenerationProvider = envutil.String("OMYA_GENERATION_PROVIDER", c.GenerationProvider)
	c.TranscribeProvider = envutil.String("OMYA_TRANSCRIBE_PROVIDER", c.TranscribeProvider)
	c.ProviderConcurrency = envutil.Int("OMYA_PROVIDER_CONCURRENCY", c.ProviderConcurrency)
	c.Limiter = envutil.String("OMYA_LIMITER", c.Limiter)
	c.Redis.Addr = envutil.String("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envutil.String("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envutil.Int("REDIS_DB", c.Redis.DB)

	oa := openai.ConfigFromEnv()
	if oa.APIKey != "" {
		c.OpenAI.APIKey = oa.APIKey
	}
	if oa.BaseURL != "" {
		c.OpenAI.BaseURL = oa.BaseURL
	}
	if oa.Timeout > 0 {
		c.OpenAI.TimeoutSeconds = int(oa.Timeout / time.Second)
	}
	c.GeminiAPIKey = envutil.String("GEMINI_API_KEY", c.GeminiAPIKey)
	c.SpeechLanguageCode = envutil.String("SPEECH_LANGUAGE_CODE", c.SpeechLanguageCode)
	c.SpeechStagingBucket = envutil.String("OMYA_SPEECH_GCS_BUCKET", c.SpeechStagingBucket)
	c.Media.FFmpegPath = envutil.String("FFMPEG_PATH", c.Media.FFmpegPath)
	c.Media.FFprobePath = envutil.String("FFPROBE_PATH", c.Media.FFprobePath)

	c.Output.Store = envutil.String("OMYA_OUTPUT_STORE", c.Output.Store)
	c.Output.GCSBucket = envutil.String("OMYA_OUTPUT_GCS_BUCKET", c.Output.GCSBucket)
	c.Output.GCSPrefix = envutil.String("OMYA_OUTPUT_GCS_PREFIX", c.Output.GCSPrefix)
	c.Output.GCSEmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", c.Output.GCSEmulatorHost)
	c.RunsDB.Driver = envutil.String("OMYA_RUNS_DB_DRIVER", c.RunsDB.Driver)
	c.RunsDB.DSN = envutil.String("OMYA_RUNS_DB_DSN", c.RunsDB.DSN)

	c.Otel.Enabled = envutil.Bool("OTEL_ENABLED", c.Otel.Enabled)
	c.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", c.Otel.Endpoint)
	c.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", c.Otel.Insecure)
	c.Otel.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", c.Otel.Headers)
	c.Otel.SampleRatio = envutil.Float("OTEL_SAMPLE_RATIO", c.Otel.SampleRatio)
	c.Otel.Environment = envutil.String("APP_ENV", c.Otel.Environment)
	c.Metrics = envutil.Bool("METRICS_ENABLED", c.Metrics)
	c.HTTPAddr = envutil.String("OMYA_METRICS_ADDR", c.HTTPAddr)
	c.WatchConcurrency = envutil.Int("OMYA_WATCH_CONCURRENCY", c.WatchConcurrency)
}

// Validate normalises enumerations, restores defaults for non-positive
// numbers and rejects combinations that cannot be wired.
func (c *Config) Validate() error {
	def := DefaultConfig()
	lower := func(s *string, fallback string) {
		*s = strings.ToLower(strings.TrimSpace(*s))
		if *s == "" {
			*s = fallback
		}
	}
	lower(&c.Language, def.Language)
	lower(&c.GenerationProvider, def.GenerationProvider)
	lower(&c.TranscribeProvider, def.TranscribeProvider)
	lower(&c.Limiter, def.Limiter)
	lower(&c.Tokenizer, def.Tokenizer)
	lower(&c.Output.Store, def.Output.Store)
	lower(&c.RunsDB.Driver, def.RunsDB.Driver)

	positive := func(v *int, fallback int) {
		if *v <= 0 {
			*v = fallback
		}
	}
	positive(&c.MaxAudioMB, def.MaxAudioMB)
	positive(&c.SentencesPerChunk, def.SentencesPerChunk)
	positive(&c.TokensPerChunk, def.TokensPerChunk)
	positive(&c.MaxRetries, def.MaxRetries)
	positive(&c.QuizQuestions, def.QuizQuestions)
	positive(&c.Exercises, def.Exercises)
	positive(&c.MapConcurrency, def.MapConcurrency)
	positive(&c.ProviderConcurrency, def.ProviderConcurrency)
	positive(&c.WatchConcurrency, def.WatchConcurrency)
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}

	qv, err := synth.ParseQuizValidation(c.QuizValidation)
	if err != nil {
		return apierr.Validation(err.Error())
	}
	c.QuizValidation = string(qv)

	switch c.GenerationProvider {
	case ProviderOpenAI:
	case ProviderGemini:
		if err := c.useGeminiModels(def.Models); err != nil {
			return err
		}
	default:
		return apierr.Validation(fmt.Sprintf("unknown generation provider %q", c.GenerationProvider))
	}
	switch c.TranscribeProvider {
	case ProviderOpenAI:
	case ProviderGCP:
		if strings.TrimSpace(c.SpeechStagingBucket) == "" && c.MaxAudioMB > gcp.InlineAudioMaxMB {
			c.MaxAudioMB = gcp.InlineAudioMaxMB
		}
	default:
		return apierr.Validation(fmt.Sprintf("unknown transcription provider %q", c.TranscribeProvider))
	}
	switch c.Tokenizer {
	case chunk.EstimatorTiktoken, chunk.EstimatorHeuristic:
	default:
		return apierr.Validation(fmt.Sprintf("unknown tokenizer %q", c.Tokenizer))
	}
	switch c.Limiter {
	case LimiterLocal:
	case LimiterRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return apierr.Validation("redis limiter requires REDIS_ADDR")
		}
	default:
		return apierr.Validation(fmt.Sprintf("unknown limiter %q", c.Limiter))
	}
	switch c.Output.Store {
	case StoreLocal:
	case StoreGCS:
		if strings.TrimSpace(c.Output.GCSBucket) == "" {
			return apierr.Validation("gcs output store requires OMYA_OUTPUT_GCS_BUCKET")
		}
	default:
		return apierr.Validation(fmt.Sprintf("unknown output store %q", c.Output.Store))
	}
	switch c.RunsDB.Driver {
	case db.DriverNone, db.DriverSQLite:
	case db.DriverPostgres:
		if strings.TrimSpace(c.RunsDB.DSN) == "" {
			return apierr.Validation("postgres run records require OMYA_RUNS_DB_DSN")
		}
	default:
		return apierr.Validation(fmt.Sprintf("unknown runs db driver %q", c.RunsDB.Driver))
	}
	return nil
}

// useGeminiModels swaps untouched OpenAI defaults for Gemini models and
// rejects explicitly configured OpenAI ones.
func (c *Config) useGeminiModels(openaiDefaults domain.ModelSet) error {
	for _, m := range []struct {
		stage    string
		model    *string
		openai   string
		fallback string
	}{
		{"course", &c.Models.Course, openaiDefaults.Course, GeminiCourseModel},
		{"summary", &c.Models.Summary, openaiDefaults.Summary, GeminiSummaryModel},
		{"qcm", &c.Models.Quiz, openaiDefaults.Quiz, GeminiCourseModel},
		{"exercises", &c.Models.Exercises, openaiDefaults.Exercises, GeminiCourseModel},
	} {
		name := strings.TrimSpace(*m.model)
		switch {
		case name == "" || name == m.openai:
			*m.model = m.fallback
		case strings.HasPrefix(strings.ToLower(name), "gpt-"):
			return apierr.Validation(fmt.Sprintf("%s model %q is not served by the gemini provider", m.stage, name))
		}
	}
	return nil
}

func (c Config) otel() observability.OtelConfig {
	return observability.OtelConfig{
		Enabled:     c.Otel.Enabled,
		ServiceName: "omya",
		Environment: c.Otel.Environment,
		Endpoint:    c.Otel.Endpoint,
		Insecure:    c.Otel.Insecure,
		Headers:     observability.ParseHeaders(c.Otel.Headers),
		SampleRatio: c.Otel.SampleRatio,
	}
}
