package summarize

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/llm"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/prompts"
	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

const DefaultConcurrency = 4

type Options struct {
	Model string
	// Concurrency bounds in-flight map calls for one run.
	Concurrency int
}

type Summarizer struct {
	log  *logger.Logger
	gen  llm.Generator
	opts Options
}

func New(log *logger.Logger, gen llm.Generator, opts Options) *Summarizer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Summarizer{log: log.With("service", "MapReduceSummarizer"), gen: gen, opts: opts}
}

type Output struct {
	// Bullets[i] summarizes chunks[i].
	Bullets []string
	Outline string
}

// Map summarizes each chunk independently. Results come back in chunk order
// whatever order the calls finish in; the first failure cancels the rest.
func (s *Summarizer) Map(ctx context.Context, chunks []domain.TextChunk, language string) ([]string, error) {
	if len(chunks) == 0 {
		return nil, apierr.Validation("no chunks to summarize")
	}
	results := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i := range chunks {
		i := i
		g.Go(func() error {
			out, err := s.gen.Generate(gctx, llm.Request{
				Stage:       "summarize",
				Model:       s.opts.Model,
				Temperature: prompts.TempSummarize,
				Messages:    prompts.Summarize(chunks[i].Text, language),
			})
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, r := range results {
		if r == "" {
			return nil, fmt.Errorf("summary for chunk %d missing", i)
		}
	}
	return results, nil
}

// Reduce merges the ordered bullets into one outline.
func (s *Summarizer) Reduce(ctx context.Context, bullets []string, language string) (string, error) {
	return s.gen.Generate(ctx, llm.Request{
		Stage:       "reduce",
		Model:       s.opts.Model,
		Temperature: prompts.TempReduce,
		Messages:    prompts.Reduce(bullets, language),
	})
}

func (s *Summarizer) Summarize(ctx context.Context, chunks []domain.TextChunk, language string) (*Output, error) {
	bullets, err := s.Map(ctx, chunks, language)
	if err != nil {
		return nil, err
	}
	s.log.Debug("map complete", "chunks", len(chunks))
	outline, err := s.Reduce(ctx, bullets, language)
	if err != nil {
		return nil, err
	}
	return &Output{Bullets: bullets, Outline: outline}, nil
}
