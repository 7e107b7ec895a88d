// Package output persists the artifacts of a pipeline run.
package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

const DefaultBase = "omya_output/out"

type Options struct {
	// Docx also renders the course as <base>_course.docx.
	Docx bool
	// Title heads the DOCX document.
	Title string
}

// Saved is one written artifact, in write order.
type Saved struct {
	Kind     string
	Location string
}

type Writer struct {
	log   *logger.Logger
	store Store
}

func NewWriter(log *logger.Logger, store Store) *Writer {
	if store == nil {
		store = LocalStore{}
	}
	return &Writer{log: log.With("service", "ArtifactWriter"), store: store}
}

type meta struct {
	RunID          string          `json:"run_id,omitempty"`
	Language       string          `json:"language,omitempty"`
	ChunkPreview   []string        `json:"chunks_preview"`
	SummaryPreview []string        `json:"summaries_preview"`
	Models         domain.ModelSet `json:"models"`
	QuizProblems   []string        `json:"quiz_problems,omitempty"`
}

// Save writes <base>_transcript.txt, <base>_course.md, <base>_qcm.md,
// <base>_exercises.md and <base>_meta.json, plus <base>_course.docx when
// requested.
func (w *Writer) Save(ctx context.Context, base string, res *domain.PipelineResult, opts Options) ([]Saved, error) {
	if res == nil {
		return nil, fmt.Errorf("nil pipeline result")
	}
	if base == "" {
		base = DefaultBase
	}

	metaJSON, err := marshalMeta(res)
	if err != nil {
		return nil, err
	}
	artifacts := []struct {
		kind, suffix string
		data         []byte
	}{
		{"transcript", "_transcript.txt", []byte(res.Transcript)},
		{"course", "_course.md", []byte(res.Course)},
		{"qcm", "_qcm.md", []byte(res.Quiz)},
		{"exercises", "_exercises.md", []byte(res.Exercises)},
		{"meta", "_meta.json", metaJSON},
	}
	if opts.Docx {
		doc, err := CourseDocx(opts.Title, res.Course)
		if err != nil {
			return nil, fmt.Errorf("render docx: %w", err)
		}
		artifacts = append(artifacts, struct {
			kind, suffix string
			data         []byte
		}{"course_docx", "_course.docx", doc})
	}

	saved := make([]Saved, 0, len(artifacts))
	for _, a := range artifacts {
		loc, err := w.store.Put(ctx, base+a.suffix, a.data)
		if err != nil {
			return saved, err
		}
		saved = append(saved, Saved{Kind: a.kind, Location: loc})
	}
	w.log.Info("artifacts saved", "run_id", res.RunID, "base", base, "count", len(saved))
	return saved, nil
}

func marshalMeta(res *domain.PipelineResult) ([]byte, error) {
	m := meta{
		RunID:          res.RunID,
		Language:       res.Language,
		ChunkPreview:   nonNil(res.ChunkPreview),
		SummaryPreview: nonNil(res.SummaryPreview),
		Models:         res.Models,
		QuizProblems:   res.QuizProblems,
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	return buf.Bytes(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
