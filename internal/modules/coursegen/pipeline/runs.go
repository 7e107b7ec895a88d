package pipeline

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/platform/dbctx"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

// RunStore persists run status. repos.CourseRunRepo satisfies it.
type RunStore interface {
	Create(dbc dbctx.Context, run *domain.CourseRun) (*domain.CourseRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.CourseRun, error)
	MarkStarted(dbc dbctx.Context, id uuid.UUID) (bool, error)
	MarkSucceeded(dbc dbctx.Context, id uuid.UUID, meta []byte) (bool, error)
	MarkFailed(dbc dbctx.Context, id uuid.UUID, errMsg string) (bool, error)
}

type runMeta struct {
	ChunkPreview   []string        `json:"chunks_preview"`
	SummaryPreview []string        `json:"summaries_preview"`
	Models         domain.ModelSet `json:"models"`
	QuizProblems   []string        `json:"quiz_problems,omitempty"`
}

// runTracker writes run records on a best-effort basis; a store failure never
// fails the run itself.
type runTracker struct {
	log   *logger.Logger
	store RunStore
}

func newRunTracker(log *logger.Logger, store RunStore) *runTracker {
	return &runTracker{log: log, store: store}
}

// begin creates or resumes the record for id. done reports a record that
// already succeeded.
func (t *runTracker) begin(ctx context.Context, id uuid.UUID, src domain.Source, title, language string) (done bool, err error) {
	if t.store == nil {
		return false, nil
	}
	dbc := dbctx.New(ctx)
	existing, err := t.store.GetByID(dbc, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		run := &domain.CourseRun{
			ID:         id,
			SourceType: src.SourceType(),
			SourceRef:  sourceRef(src),
			Title:      title,
			Language:   language,
			Status:     domain.RunStatusQueued,
		}
		if _, err := t.store.Create(dbc, run); err != nil {
			return false, err
		}
	} else if existing.Status == domain.RunStatusSuccess {
		return true, nil
	}
	_, err = t.store.MarkStarted(dbc, id)
	return false, err
}

func (t *runTracker) succeed(ctx context.Context, id uuid.UUID, res *domain.PipelineResult) {
	if t.store == nil || res == nil {
		return
	}
	meta, err := json.Marshal(runMeta{
		ChunkPreview:   res.ChunkPreview,
		SummaryPreview: res.SummaryPreview,
		Models:         res.Models,
		QuizProblems:   res.QuizProblems,
	})
	if err != nil {
		meta = []byte("{}")
	}
	if _, err := t.store.MarkSucceeded(dbctx.New(context.WithoutCancel(ctx)), id, meta); err != nil {
		t.log.Warn("record run success failed", "run_id", id.String(), "error", err)
	}
}

func (t *runTracker) fail(ctx context.Context, id uuid.UUID, runErr error) {
	if t.store == nil {
		return
	}
	if _, err := t.store.MarkFailed(dbctx.New(context.WithoutCancel(ctx)), id, runErr.Error()); err != nil {
		t.log.Warn("record run failure failed", "run_id", id.String(), "error", err)
	}
}

func sourceRef(src domain.Source) string {
	switch s := src.(type) {
	case domain.AudioSource:
		return s.Path
	case domain.TextSource:
		if r := []rune(s.Content); len(r) > 80 {
			return string(r[:80])
		}
		return s.Content
	}
	return ""
}
