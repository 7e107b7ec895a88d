package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/platform/dbctx"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

// CourseRunRepo persists run lifecycle rows. Status transitions never leave
// SUCCESS: a late MarkFailed or MarkStarted on a finished run is a no-op.
type CourseRunRepo interface {
	Create(dbc dbctx.Context, run *domain.CourseRun) (*domain.CourseRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.CourseRun, error)
	MarkStarted(dbc dbctx.Context, id uuid.UUID) (bool, error)
	MarkSucceeded(dbc dbctx.Context, id uuid.UUID, meta []byte) (bool, error)
	MarkFailed(dbc dbctx.Context, id uuid.UUID, errMsg string) (bool, error)
	ListRecent(dbc dbctx.Context, limit int) ([]*domain.CourseRun, error)
}

type courseRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRunRepo(db *gorm.DB, baseLog *logger.Logger) CourseRunRepo {
	return &courseRunRepo{
		db:  db,
		log: baseLog.With("repo", "CourseRunRepo"),
	}
}

func (r *courseRunRepo) Create(dbc dbctx.Context, run *domain.CourseRun) (*domain.CourseRun, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusQueued
	}
	if err := dbc.DB(r.db).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *courseRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.CourseRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run domain.CourseRun
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&run).Error; err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *courseRunRepo) MarkStarted(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	now := time.Now().UTC()
	return r.updateUnlessSuccess(dbc, id, map[string]interface{}{
		"status":     domain.RunStatusStarted,
		"started_at": now,
		"updated_at": now,
	})
}

func (r *courseRunRepo) MarkSucceeded(dbc dbctx.Context, id uuid.UUID, meta []byte) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":      domain.RunStatusSuccess,
		"error":       "",
		"finished_at": now,
		"updated_at":  now,
	}
	if len(meta) > 0 {
		updates["meta"] = meta
	}
	return r.updateUnlessSuccess(dbc, id, updates)
}

func (r *courseRunRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, errMsg string) (bool, error) {
	now := time.Now().UTC()
	return r.updateUnlessSuccess(dbc, id, map[string]interface{}{
		"status":      domain.RunStatusFailure,
		"error":       errMsg,
		"finished_at": now,
		"updated_at":  now,
	})
}

func (r *courseRunRepo) updateUnlessSuccess(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	res := dbc.DB(r.db).
		Model(&domain.CourseRun{}).
		Where("id = ? AND status <> ?", id, domain.RunStatusSuccess).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Debug("run update skipped", "run_id", id, "status", updates["status"])
	}
	return res.RowsAffected > 0, nil
}

func (r *courseRunRepo) ListRecent(dbc dbctx.Context, limit int) ([]*domain.CourseRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []*domain.CourseRun
	if err := dbc.DB(r.db).Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
