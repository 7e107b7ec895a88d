package pipeline

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/yungbote/omya-backend/internal/platform/logger"
)

// cleanupGuard owns every file a run writes next to its audio source. Release
// is deferred by the orchestrator so it runs on every exit path.
type cleanupGuard struct {
	log            *logger.Logger
	original       string
	deleteOriginal bool

	mu      sync.Mutex
	tracked []string
	done    bool
}

func newCleanupGuard(log *logger.Logger, original string, deleteOriginal bool) *cleanupGuard {
	return &cleanupGuard{log: log, original: original, deleteOriginal: deleteOriginal}
}

// Track registers a path for deletion. Paths may not exist yet.
func (g *cleanupGuard) Track(path string) {
	g.mu.Lock()
	g.tracked = append(g.tracked, path)
	g.mu.Unlock()
}

// Release deletes tracked files, sweeps stray <original>_part*.mp3 files, and
// deletes the original when configured. Errors are logged, never returned.
func (g *cleanupGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return
	}
	g.done = true

	for _, p := range g.tracked {
		g.remove(p)
	}
	if g.original == "" {
		return
	}
	strays, err := filepath.Glob(globEscape(g.original) + "_part*.mp3")
	if err != nil {
		g.log.Warn("cleanup glob failed", "path", g.original, "error", err)
	}
	for _, p := range strays {
		g.remove(p)
	}
	if g.deleteOriginal {
		g.remove(g.original)
	}
}

func (g *cleanupGuard) remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		g.log.Warn("cleanup remove failed", "path", path, "error", err)
	}
}

// globEscape quotes glob metacharacters so the original path matches literally.
func globEscape(p string) string {
	out := make([]rune, 0, len(p))
	for _, r := range p {
		switch r {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
