package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/omya-backend/internal/platform/apierr"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OMYA_CONFIG_FILE", "OMYA_LANGUAGE", "OMYA_COURSE_MODEL", "OMYA_QCM_MODEL",
		"OMYA_MAX_RETRIES", "OMYA_QUIZ_VALIDATION", "OMYA_GENERATION_PROVIDER",
		"OMYA_TRANSCRIBE_PROVIDER", "OMYA_LIMITER", "REDIS_ADDR", "OMYA_OUTPUT_STORE",
		"OMYA_OUTPUT_GCS_BUCKET", "OMYA_RUNS_DB_DRIVER", "OMYA_RUNS_DB_DSN",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_TIMEOUT_SECONDS", "OMYA_DELETE_ORIGINAL_AUDIO",
		"OMYA_TOKENIZER", "OMYA_SENTENCES_PER_CHUNK", "OMYA_SUMMARY_MODEL", "OMYA_EXO_MODEL",
		"OMYA_MAX_AUDIO_MB", "OMYA_SPEECH_GCS_BUCKET",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Models.Course != "gpt-4o" || cfg.Models.Summary != "gpt-4o-mini" || cfg.Models.Transcribe != "whisper-1" {
		t.Fatalf("models: got=%+v", cfg.Models)
	}
	if cfg.MaxAudioMB != 24 || cfg.SentencesPerChunk != 12 || cfg.TokensPerChunk != 900 {
		t.Fatalf("sizes: got=%d/%d/%d", cfg.MaxAudioMB, cfg.SentencesPerChunk, cfg.TokensPerChunk)
	}
	if cfg.MaxRetries != 4 || cfg.RetryBackoff != 2.0 || !cfg.DeleteOriginalAudio {
		t.Fatalf("retry/cleanup: got=%d/%v/%v", cfg.MaxRetries, cfg.RetryBackoff, cfg.DeleteOriginalAudio)
	}
	if cfg.Language != "fr" || cfg.QuizValidation != "repair" {
		t.Fatalf("language/quiz: got=%s/%s", cfg.Language, cfg.QuizValidation)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "omya.yaml")
	yml := `
language: EN
models:
  course: file-course
  qcm: file-quiz
max_retries: 6
generation_provider: gemini
output:
  store: gcs
  gcs_bucket: lectures
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OMYA_CONFIG_FILE", path)
	t.Setenv("OMYA_QCM_MODEL", "env-quiz")
	t.Setenv("OMYA_DELETE_ORIGINAL_AUDIO", "false")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Language != "en" {
		t.Fatalf("language: want=en got=%s", cfg.Language)
	}
	if cfg.Models.Course != "file-course" || cfg.Models.Quiz != "env-quiz" || cfg.Models.Summary != GeminiSummaryModel {
		t.Fatalf("models: got=%+v", cfg.Models)
	}
	if cfg.MaxRetries != 6 || cfg.DeleteOriginalAudio {
		t.Fatalf("overrides: got=%d/%v", cfg.MaxRetries, cfg.DeleteOriginalAudio)
	}
	if cfg.GenerationProvider != ProviderGemini || cfg.Output.GCSBucket != "lectures" {
		t.Fatalf("provider/store: got=%s/%s", cfg.GenerationProvider, cfg.Output.GCSBucket)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Fatalf("openai key not picked up")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"generation provider": func(c *Config) { c.GenerationProvider = "anthropic" },
		"transcribe provider": func(c *Config) { c.TranscribeProvider = "gemini" },
		"quiz validation":     func(c *Config) { c.QuizValidation = "lenient" },
		"redis without addr":  func(c *Config) { c.Limiter = LimiterRedis },
		"gcs without bucket":  func(c *Config) { c.Output.Store = StoreGCS },
		"postgres no dsn":     func(c *Config) { c.RunsDB.Driver = "postgres" },
		"tokenizer":           func(c *Config) { c.Tokenizer = "bpe" },
		"gemini with gpt":     func(c *Config) { c.GenerationProvider = ProviderGemini; c.Models.Quiz = "gpt-4.1" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			err := cfg.Validate()
			if !apierr.IsKind(err, apierr.KindValidation) {
				t.Fatalf("want validation error, got=%v", err)
			}
		})
	}
}

func TestValidateRestoresNonPositive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.MapConcurrency = -1
	cfg.RetryBackoff = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.MaxRetries != 4 || cfg.MapConcurrency != 4 || cfg.RetryBackoff != 2.0 {
		t.Fatalf("defaults: got=%d/%d/%v", cfg.MaxRetries, cfg.MapConcurrency, cfg.RetryBackoff)
	}
}

func TestValidateGeminiReplacesOpenAIDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GenerationProvider = ProviderGemini
	cfg.Models.Exercises = "gemini-2.0-flash"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Models.Course != GeminiCourseModel || cfg.Models.Quiz != GeminiCourseModel {
		t.Fatalf("course/qcm: got=%s/%s", cfg.Models.Course, cfg.Models.Quiz)
	}
	if cfg.Models.Summary != GeminiSummaryModel {
		t.Fatalf("summary: want=%s got=%s", GeminiSummaryModel, cfg.Models.Summary)
	}
	if cfg.Models.Exercises != "gemini-2.0-flash" {
		t.Fatalf("exercises: want=gemini-2.0-flash got=%s", cfg.Models.Exercises)
	}
}

func TestValidateCapsInlineSpeechSegments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TranscribeProvider = ProviderGCP
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.MaxAudioMB != 10 {
		t.Fatalf("max audio without staging: want=10 got=%d", cfg.MaxAudioMB)
	}

	staged := DefaultConfig()
	staged.TranscribeProvider = ProviderGCP
	staged.SpeechStagingBucket = "omya-speech"
	if err := staged.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if staged.MaxAudioMB != 24 {
		t.Fatalf("max audio with staging: want=24 got=%d", staged.MaxAudioMB)
	}
}
