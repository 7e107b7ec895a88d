package localmedia

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/omya-backend/internal/platform/logger"
)

// Tools is the glue around the ffmpeg/ffprobe binaries used to measure and
// slice audio. Both must be on PATH in the worker runtime.
type Tools interface {
	AssertReady(ctx context.Context) error

	// ProbeDurationMs returns the decoded duration of an audio or video file.
	ProbeDurationMs(ctx context.Context, path string) (int64, error)

	// ExportSpan re-encodes [startMs, startMs+lengthMs) of src as MP3 at dst.
	// lengthMs <= 0 exports from startMs to the end.
	ExportSpan(ctx context.Context, src, dst string, startMs, lengthMs int64) error
}

type Options struct {
	FFmpegPath  string
	FFprobePath string
	// Output encoding for exported spans. Zero values keep the defaults below.
	SampleRateHz int
	Channels     int
	Bitrate      string
	Timeout      time.Duration
}

// commandRunner runs a binary and returns its combined output.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type tools struct {
	log    *logger.Logger
	runner commandRunner

	ffmpegPath  string
	ffprobePath string

	sampleRate int
	channels   int
	bitrate    string

	defaultTimeout time.Duration
}

func New(log *logger.Logger, opts Options) Tools {
	return newWithRunner(log, opts, execRunner{})
}

func newWithRunner(log *logger.Logger, opts Options, runner commandRunner) *tools {
	t := &tools{
		log:            log.With("service", "MediaTools"),
		runner:         runner,
		ffmpegPath:     opts.FFmpegPath,
		ffprobePath:    opts.FFprobePath,
		sampleRate:     opts.SampleRateHz,
		channels:       opts.Channels,
		bitrate:        opts.Bitrate,
		defaultTimeout: opts.Timeout,
	}
	if t.ffmpegPath == "" {
		t.ffmpegPath = "ffmpeg"
	}
	if t.ffprobePath == "" {
		t.ffprobePath = "ffprobe"
	}
	if t.sampleRate <= 0 {
		t.sampleRate = 16000
	}
	if t.channels <= 0 {
		t.channels = 1
	}
	if t.bitrate == "" {
		t.bitrate = "64k"
	}
	if t.defaultTimeout <= 0 {
		t.defaultTimeout = 10 * time.Minute
	}
	return t
}

func (m *tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	return nil
}

func (m *tools) ProbeDurationMs(ctx context.Context, path string) (int64, error) {
	if path == "" {
		return 0, fmt.Errorf("path required")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := m.runner.Run(ctx, m.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w; out=%s", err, string(out))
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "N/A" {
			continue
		}
		secs, err := strconv.ParseFloat(line, 64)
		if err != nil || secs < 0 {
			continue
		}
		return int64(math.Round(secs * 1000)), nil
	}
	return 0, fmt.Errorf("ffprobe output missing duration for %s", path)
}

func (m *tools) ExportSpan(ctx context.Context, src, dst string, startMs, lengthMs int64) error {
	if src == "" || dst == "" {
		return fmt.Errorf("src and dst required")
	}
	if startMs < 0 {
		return fmt.Errorf("negative start offset %d", startMs)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir dst dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	if startMs > 0 {
		args = append(args, "-ss", formatSeconds(startMs))
	}
	args = append(args, "-i", src)
	if lengthMs > 0 {
		args = append(args, "-t", formatSeconds(lengthMs))
	}
	args = append(args,
		"-vn",
		"-acodec", "libmp3lame",
		"-ac", strconv.Itoa(m.channels),
		"-ar", strconv.Itoa(m.sampleRate),
		"-b:a", m.bitrate,
		"-f", "mp3",
		dst,
	)

	out, err := m.runner.Run(ctx, m.ffmpegPath, args...)
	if err != nil {
		return fmt.Errorf("ffmpeg export span failed: %w; out=%s", err, string(out))
	}
	if _, err := os.Stat(dst); err != nil {
		return fmt.Errorf("audio output missing at %s", dst)
	}
	m.log.Debug("exported span", "src", src, "dst", dst, "start_ms", startMs, "length_ms", lengthMs)
	return nil
}

func formatSeconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000.0, 'f', 3, 64)
}
