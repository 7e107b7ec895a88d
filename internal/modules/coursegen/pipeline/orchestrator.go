package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/chunk"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/pathnorm"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/summarize"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/synth"
	"github.com/yungbote/omya-backend/internal/observability"
	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/platform/ctxutil"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

const (
	DefaultLanguage = "fr"
	previewCount    = 3
)

// ErrAlreadyProcessed is returned by RunWithID when the run record already
// reached SUCCESS.
var ErrAlreadyProcessed = errors.New("run already succeeded")

type Segmenter interface {
	Split(ctx context.Context, path string, track func(string)) ([]domain.AudioSegment, error)
}

type Transcriber interface {
	TranscribeAll(ctx context.Context, segments []domain.AudioSegment, model string) (string, error)
}

type Chunker interface {
	Chunk(text string) []domain.TextChunk
}

type Summarizer interface {
	Summarize(ctx context.Context, chunks []domain.TextChunk, language string) (*summarize.Output, error)
}

type Synthesizer interface {
	Course(ctx context.Context, outline, titleHint, language string) (string, error)
	Quiz(ctx context.Context, course, language string) (*synth.QuizOutput, error)
	Exercises(ctx context.Context, course, language string) (string, error)
}

type Deps struct {
	Log         *logger.Logger
	Segmenter   Segmenter
	Transcriber Transcriber
	Chunker     Chunker
	Summarizer  Summarizer
	Synth       Synthesizer
	// Runs is optional; nil disables run records.
	Runs    RunStore
	Metrics *observability.Metrics
}

type Options struct {
	Models              domain.ModelSet
	DeleteOriginalAudio bool
	DefaultLanguage     string
}

type Orchestrator struct {
	log     *logger.Logger
	seg     Segmenter
	tr      Transcriber
	chunker Chunker
	sum     Summarizer
	synth   Synthesizer
	runs    *runTracker
	metrics *observability.Metrics
	opts    Options
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = DefaultLanguage
	}
	log := deps.Log.With("service", "PipelineOrchestrator")
	return &Orchestrator{
		log:     log,
		seg:     deps.Segmenter,
		tr:      deps.Transcriber,
		chunker: deps.Chunker,
		sum:     deps.Summarizer,
		synth:   deps.Synth,
		runs:    newRunTracker(log, deps.Runs),
		metrics: deps.Metrics,
		opts:    opts,
	}
}

func (o *Orchestrator) RunFromAudio(ctx context.Context, path, titleHint, language string) (*domain.PipelineResult, error) {
	return o.Run(ctx, domain.AudioSource{Path: path}, titleHint, language)
}

func (o *Orchestrator) RunFromText(ctx context.Context, text, titleHint, language string) (*domain.PipelineResult, error) {
	return o.Run(ctx, domain.TextSource{Content: text}, titleHint, language)
}

// Run executes every stage for src under a fresh run id.
func (o *Orchestrator) Run(ctx context.Context, src domain.Source, titleHint, language string) (*domain.PipelineResult, error) {
	return o.RunWithID(ctx, uuid.New(), src, titleHint, language)
}

// RunWithID executes every stage for src, recording progress under id when
// run records are enabled. Stage errors are returned as the stage produced
// them. Segment files are deleted before RunWithID returns, whatever the
// outcome.
func (o *Orchestrator) RunWithID(ctx context.Context, id uuid.UUID, src domain.Source, titleHint, language string) (res *domain.PipelineResult, err error) {
	if src == nil {
		return nil, apierr.Validation("no source material")
	}
	if strings.TrimSpace(language) == "" {
		language = o.opts.DefaultLanguage
	}
	sourceType := src.SourceType()

	ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{RunID: id.String()})
	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		attribute.String("run_id", id.String()),
		attribute.String("source", sourceType),
		attribute.String("language", language),
	)
	if td := ctxutil.GetTraceData(ctx); td != nil {
		td.TraceID = observability.TraceID(ctx)
	}
	log := o.log.With("run_id", id.String(), "source", sourceType, "language", language)
	start := time.Now()

	if done, rerr := o.runs.begin(ctx, id, src, titleHint, language); rerr != nil {
		log.Warn("run record unavailable", "error", rerr)
	} else if done {
		observability.EndSpan(span, ErrAlreadyProcessed)
		return nil, ErrAlreadyProcessed
	}

	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			o.runs.fail(ctx, id, err)
			log.Error("pipeline run failed", "error", err, "elapsed", time.Since(start).String())
		} else {
			o.runs.succeed(ctx, id, res)
			log.Info("pipeline run complete", "elapsed", time.Since(start).String())
		}
		o.metrics.IncRun(sourceType, status)
		observability.EndSpan(span, err)
	}()

	var transcript string
	switch s := src.(type) {
	case domain.AudioSource:
		transcript, err = o.transcribeAudio(ctx, s.Path)
		if err != nil {
			return nil, err
		}
	case domain.TextSource:
		transcript = strings.TrimSpace(s.Content)
		if transcript == "" {
			return nil, apierr.Validation("empty text input")
		}
	default:
		return nil, apierr.Validation(fmt.Sprintf("unsupported source type %q", sourceType))
	}

	res, err = o.generate(ctx, transcript, titleHint, language)
	if err != nil {
		return nil, err
	}
	res.RunID = id.String()
	res.SourceType = sourceType
	return res, nil
}

func (o *Orchestrator) transcribeAudio(ctx context.Context, rawPath string) (string, error) {
	path := pathnorm.Normalize(rawPath)
	if strings.TrimSpace(path) == "" {
		return "", apierr.Validation("empty audio path")
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apierr.NotFound(path)
		}
		return "", fmt.Errorf("stat audio: %w", err)
	}

	guard := newCleanupGuard(o.log, path, o.opts.DeleteOriginalAudio)
	defer guard.Release()

	var segments []domain.AudioSegment
	if err := o.stage(ctx, "segment", func(ctx context.Context) error {
		var err error
		segments, err = o.seg.Split(ctx, path, guard.Track)
		return err
	}); err != nil {
		return "", err
	}

	var transcript string
	if err := o.stage(ctx, "transcribe", func(ctx context.Context) error {
		var err error
		transcript, err = o.tr.TranscribeAll(ctx, segments, o.opts.Models.Transcribe)
		return err
	}); err != nil {
		return "", err
	}
	if transcript == "" {
		return "", apierr.Validation("transcription produced no text")
	}
	return transcript, nil
}

func (o *Orchestrator) generate(ctx context.Context, transcript, titleHint, language string) (*domain.PipelineResult, error) {
	var chunks []domain.TextChunk
	if err := o.stage(ctx, "chunk", func(ctx context.Context) error {
		chunks = o.chunker.Chunk(transcript)
		if len(chunks) == 0 {
			return apierr.Validation("text produced no chunks")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var summary *summarize.Output
	if err := o.stage(ctx, "summarize", func(ctx context.Context) error {
		var err error
		summary, err = o.sum.Summarize(ctx, chunks, language)
		return err
	}); err != nil {
		return nil, err
	}

	var course string
	if err := o.stage(ctx, "course", func(ctx context.Context) error {
		var err error
		course, err = o.synth.Course(ctx, summary.Outline, titleHint, language)
		return err
	}); err != nil {
		return nil, err
	}

	var quiz *synth.QuizOutput
	if err := o.stage(ctx, "quiz", func(ctx context.Context) error {
		var err error
		quiz, err = o.synth.Quiz(ctx, course, language)
		return err
	}); err != nil {
		return nil, err
	}

	var exercises string
	if err := o.stage(ctx, "exercises", func(ctx context.Context) error {
		var err error
		exercises, err = o.synth.Exercises(ctx, course, language)
		return err
	}); err != nil {
		return nil, err
	}

	problems := make([]string, 0, len(quiz.Problems))
	for _, p := range quiz.Problems {
		problems = append(problems, p.String())
	}
	return &domain.PipelineResult{
		Language:       language,
		Transcript:     transcript,
		Course:         course,
		Quiz:           quiz.Text,
		Exercises:      exercises,
		ChunkPreview:   head(chunk.Texts(chunks), previewCount),
		SummaryPreview: head(summary.Bullets, previewCount),
		QuizProblems:   problems,
		Models:         o.opts.Models,
	}, nil
}

// stage runs fn under its own span and duration metric.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "pipeline."+name)
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	o.metrics.ObserveStage(name, status, elapsed)
	observability.EndSpan(span, err)
	o.log.Debug("stage finished", "run_id", ctxutil.RunID(ctx), "stage", name, "status", status, "elapsed", elapsed.String())
	return err
}

func head(items []string, n int) []string {
	if len(items) < n {
		n = len(items)
	}
	out := make([]string, n)
	copy(out, items[:n])
	return out
}
