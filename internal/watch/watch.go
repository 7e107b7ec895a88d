// Package watch turns audio files dropped into a directory into pipeline runs.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/yungbote/omya-backend/internal/platform/logger"
)

var audioExts = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".ogg": true,
	".flac": true, ".webm": true, ".mp4": true,
}

// Segment exports written next to the source must never start a run of their own.
var partFile = regexp.MustCompile(`_part\d+\.mp3$`)

// Job is one audio file to process.
type Job struct {
	ID      uuid.UUID
	Path    string
	OutBase string
}

// Handler processes a job. Errors are logged; the watcher keeps going.
type Handler func(ctx context.Context, job Job) error

type Options struct {
	Dir         string
	OutDir      string
	Concurrency int
	// Settle is how long a file's size must stay unchanged before it is picked up.
	Settle time.Duration
}

type Watcher struct {
	log     *logger.Logger
	handler Handler
	opts    Options
	fsw     *fsnotify.Watcher
	sem     chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	active map[string]bool
}

// New starts watching opts.Dir immediately; events are handled once Run is called.
func New(log *logger.Logger, handler Handler, opts Options) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("watch handler required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Settle <= 0 {
		opts.Settle = 500 * time.Millisecond
	}
	if opts.OutDir == "" {
		opts.OutDir = opts.Dir
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(opts.Dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}
	return &Watcher{
		log:     log.With("service", "FolderWatcher", "dir", opts.Dir),
		handler: handler,
		opts:    opts,
		fsw:     fsw,
		sem:     make(chan struct{}, opts.Concurrency),
		active:  map[string]bool{},
	}, nil
}

// Run dispatches created audio files until ctx is done, then waits for
// in-flight jobs. Jobs already started are not cancelled by ctx.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	w.log.Info("watching for audio", "max_concurrent", w.opts.Concurrency, "out_dir", w.opts.OutDir)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("waiting for in-flight runs")
			w.wg.Wait()
			w.log.Info("watcher stopped")
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				w.wg.Wait()
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !IsAudio(event.Name) {
				w.log.Debug("ignoring file", "path", event.Name)
				continue
			}
			if !w.claim(event.Name) {
				continue
			}
			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				w.release(event.Name)
				continue
			}
			w.wg.Add(1)
			go w.process(context.WithoutCancel(ctx), event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.wg.Wait()
				return fmt.Errorf("watcher errors channel closed")
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	defer w.wg.Done()
	defer func() { <-w.sem }()
	defer w.release(path)

	info, err := waitStable(ctx, path, w.opts.Settle)
	if err != nil {
		w.log.Warn("file vanished before processing", "path", path, "error", err)
		return
	}
	job := Job{
		ID:      RunID(path, info),
		Path:    path,
		OutBase: OutBase(w.opts.OutDir, path),
	}
	w.log.Info("audio detected", "path", path, "run_id", job.ID.String())
	if err := w.handler(ctx, job); err != nil {
		w.log.Error("run failed", "path", path, "run_id", job.ID.String(), "error", err)
	}
}

func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active[path] {
		return false
	}
	w.active[path] = true
	return true
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	delete(w.active, path)
	w.mu.Unlock()
}

func waitStable(ctx context.Context, path string, settle time.Duration) (os.FileInfo, error) {
	prev, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	for {
		t := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		cur, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if cur.Size() == prev.Size() && cur.ModTime().Equal(prev.ModTime()) {
			return cur, nil
		}
		prev = cur
	}
}

func IsAudio(path string) bool {
	if partFile.MatchString(path) {
		return false
	}
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

// OutBase is <outDir>/<stem>.
func OutBase(outDir, path string) string {
	name := filepath.Base(path)
	return filepath.Join(outDir, strings.TrimSuffix(name, filepath.Ext(name)))
}

// RunID is stable for the same file content snapshot, so a re-dropped
// file that already succeeded is recognised.
func RunID(path string, info os.FileInfo) uuid.UUID {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	key := fmt.Sprintf("%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key))
}
