package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/omya-backend/internal/app"
	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/output"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/pipeline"
	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/server"
	"github.com/yungbote/omya-backend/internal/watch"
)

const (
	coursePreviewRunes = 1200
	quizPreviewLines   = 20
)

func runOnce(ctx context.Context, a *app.App, opts options, stdout io.Writer) error {
	var (
		res *domain.PipelineResult
		err error
	)
	switch {
	case opts.audio != "":
		if err := a.CheckMedia(ctx); err != nil {
			return err
		}
		res, err = a.Orchestrator.RunFromAudio(ctx, opts.audio, opts.title, opts.language)
	default:
		text := opts.text
		if opts.textFile != "" {
			text, err = a.Loader.LoadFile(opts.textFile)
			if err != nil {
				return err
			}
		}
		if strings.TrimSpace(text) == "" {
			return apierr.Validation("Empty text.")
		}
		res, err = a.Orchestrator.RunFromText(ctx, text, opts.title, opts.language)
	}
	if err != nil {
		return err
	}

	saved, err := a.Writer.Save(ctx, opts.outBase, res, output.Options{Docx: opts.docx, Title: opts.title})
	if err != nil {
		return err
	}
	printResult(stdout, res, saved)
	return nil
}

func runWatch(ctx context.Context, a *app.App, opts options) error {
	if err := a.CheckMedia(ctx); err != nil {
		return err
	}
	outDir := opts.outDir
	if outDir == "" {
		outDir = opts.watch
	}
	handler := func(ctx context.Context, job watch.Job) error {
		title := opts.title
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(job.Path), filepath.Ext(job.Path))
		}
		res, err := a.Orchestrator.RunWithID(ctx, job.ID, domain.AudioSource{Path: job.Path}, title, opts.language)
		if errors.Is(err, pipeline.ErrAlreadyProcessed) {
			a.Log.Info("skipping processed audio", "path", job.Path, "run_id", job.ID.String())
			return nil
		}
		if err != nil {
			return err
		}
		_, err = a.Writer.Save(ctx, job.OutBase, res, output.Options{Docx: opts.docx, Title: title})
		return err
	}
	w, err := watch.New(a.Log, handler, watch.Options{
		Dir:         opts.watch,
		OutDir:      outDir,
		Concurrency: a.Cfg.WatchConcurrency,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	if addr := strings.TrimSpace(a.Cfg.HTTPAddr); addr != "" {
		srv := server.NewServer(addr, a.Log, server.RouterConfig{
			Metrics: a.Metrics,
			Ready:   a.ReadyCheck(gctx),
		})
		g.Go(func() error { return srv.Run(gctx) })
	}
	return g.Wait()
}

func listRuns(ctx context.Context, a *app.App, limit int, stdout io.Writer) error {
	runs, err := a.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if runs == nil {
		return apierr.Validation("run records are disabled (set OMYA_RUNS_DB_DRIVER)")
	}
	for _, r := range runs {
		line := fmt.Sprintf("%s  %-8s %-5s %s", r.ID, r.Status, r.SourceType, r.CreatedAt.Format("2006-01-02 15:04:05"))
		if r.Title != "" {
			line += "  " + r.Title
		}
		if r.Error != "" {
			line += "  error=" + r.Error
		}
		fmt.Fprintln(stdout, line)
	}
	return nil
}

func printResult(w io.Writer, res *domain.PipelineResult, saved []output.Saved) {
	fmt.Fprintln(w, "=== COURSE (preview) ===")
	fmt.Fprintln(w, truncateRunes(res.Course, coursePreviewRunes))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== QCM (first lines) ===")
	fmt.Fprintln(w, firstLines(res.Quiz, quizPreviewLines))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== EXERCISES ===")
	fmt.Fprintln(w, res.Exercises)
	fmt.Fprintln(w)
	if len(res.QuizProblems) > 0 {
		fmt.Fprintf(w, "Quiz format warnings: %d\n", len(res.QuizProblems))
	}
	fmt.Fprintln(w, "Saved:")
	for _, s := range saved {
		fmt.Fprintf(w, "  %-11s %s\n", s.Kind, s.Location)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
