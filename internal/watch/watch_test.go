package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/omya-backend/internal/platform/logger"
)

func TestIsAudio(t *testing.T) {
	cases := map[string]bool{
		"lecture.mp3":            true,
		"LECTURE.WAV":            true,
		"talk.m4a":               true,
		"clip.webm":              true,
		"notes.txt":              false,
		"lecture.mp3_part0.mp3":  false,
		"lecture.wav_part12.mp3": false,
		"my_party.mp3":           true,
	}
	for name, want := range cases {
		if got := IsAudio(name); got != want {
			t.Fatalf("IsAudio(%q): want=%v got=%v", name, want, got)
		}
	}
}

func TestOutBase(t *testing.T) {
	if got := OutBase("/out", "/in/cours 1.mp3"); got != filepath.Join("/out", "cours 1") {
		t.Fatalf("OutBase: got=%s", got)
	}
}

func TestRunIDStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(path)
	if RunID(path, info) != RunID(path, info) {
		t.Fatal("RunID not deterministic")
	}
	if err := os.WriteFile(path, []byte("abcd"), 0o644); err != nil {
		t.Fatal(err)
	}
	info2, _ := os.Stat(path)
	if RunID(path, info) == RunID(path, info2) {
		t.Fatal("RunID ignores file changes")
	}
}

func TestWatcherDispatchesAudio(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()

	var mu sync.Mutex
	var jobs []Job
	got := make(chan struct{}, 4)
	handler := func(ctx context.Context, job Job) error {
		mu.Lock()
		jobs = append(jobs, job)
		mu.Unlock()
		got <- struct{}{}
		return nil
	}
	w, err := New(logger.Nop(), handler, Options{Dir: in, OutDir: out, Settle: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for _, name := range []string{"notes.txt", "lecture.mp3_part0.mp3", "lecture.mp3"} {
		if err := os.WriteFile(filepath.Join(in, name), []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no job dispatched")
	}
	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(jobs) != 1 {
		t.Fatalf("jobs: want=1 got=%d (%+v)", len(jobs), jobs)
	}
	if jobs[0].Path != filepath.Join(in, "lecture.mp3") || jobs[0].OutBase != filepath.Join(out, "lecture") {
		t.Fatalf("job: got=%+v", jobs[0])
	}
}

func TestWatcherWaitsForInFlight(t *testing.T) {
	in := t.TempDir()
	started := make(chan struct{})
	var finished atomic.Bool
	handler := func(ctx context.Context, job Job) error {
		close(started)
		time.Sleep(200 * time.Millisecond)
		if ctx.Err() != nil {
			t.Errorf("job context cancelled during shutdown")
		}
		finished.Store(true)
		return nil
	}
	w, err := New(logger.Nop(), handler, Options{Dir: in, Settle: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := os.WriteFile(filepath.Join(in, "talk.wav"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	cancel()
	<-done
	if !finished.Load() {
		t.Fatal("Run returned before the in-flight job finished")
	}
}
