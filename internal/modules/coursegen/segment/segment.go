package segment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

const (
	DefaultMaxMB = 24
	// Segments are re-encoded at this MP3 bitrate.
	DefaultBitrateKbps = 64
	// Trailing spans shorter than this are folded into the previous one.
	MinTailMs = 10_000
)

// Media measures and slices audio. localmedia.Tools satisfies it.
type Media interface {
	ProbeDurationMs(ctx context.Context, path string) (int64, error)
	ExportSpan(ctx context.Context, src, dst string, startMs, lengthMs int64) error
}

// Span is a half-open [StartMs, EndMs) window of the source timeline.
type Span struct {
	StartMs int64
	EndMs   int64
}

func (s Span) LengthMs() int64 { return s.EndMs - s.StartMs }

type Config struct {
	MaxMB       int
	BitrateKbps int
}

type Segmenter struct {
	log   *logger.Logger
	media Media
	cfg   Config
}

func New(log *logger.Logger, media Media, cfg Config) *Segmenter {
	if cfg.MaxMB <= 0 {
		cfg.MaxMB = DefaultMaxMB
	}
	if cfg.BitrateKbps <= 0 {
		cfg.BitrateKbps = DefaultBitrateKbps
	}
	return &Segmenter{log: log.With("service", "AudioSegmenter"), media: media, cfg: cfg}
}

// PartPath is the on-disk name of segment i of src.
func PartPath(src string, i int) string {
	return fmt.Sprintf("%s_part%d.mp3", src, i)
}

// PlanSpans divides totalMs into numParts contiguous spans of equal integer
// length, plus a remainder span when the division is not exact, then merges a
// trailing span under MinTailMs into its predecessor.
func PlanSpans(totalMs int64, numParts int) []Span {
	if totalMs <= 0 {
		return nil
	}
	if numParts <= 1 {
		return []Span{{StartMs: 0, EndMs: totalMs}}
	}
	partMs := totalMs / int64(numParts)
	if partMs <= 0 {
		partMs = totalMs
	}
	var spans []Span
	for start := int64(0); start < totalMs; {
		end := start + partMs
		if end > totalMs {
			end = totalMs
		}
		spans = append(spans, Span{StartMs: start, EndMs: end})
		start = end
	}
	if n := len(spans); n > 1 && spans[n-1].LengthMs() < MinTailMs {
		spans[n-2].EndMs = spans[n-1].EndMs
		spans = spans[:n-1]
	}
	return spans
}

// NumParts is ceil(sizeBytes / maxBytes).
func NumParts(sizeBytes, maxBytes int64) int {
	if maxBytes <= 0 || sizeBytes <= maxBytes {
		return 1
	}
	return int((sizeBytes + maxBytes - 1) / maxBytes)
}

// EncodedBytes is the size of durationMs of audio at bitrateKbps.
func EncodedBytes(durationMs int64, bitrateKbps int) int64 {
	return durationMs * int64(bitrateKbps) / 8
}

// Split exports path as one or more MP3 segments next to the source. track is
// called with each destination before it is written so a cleanup guard sees
// partially written files too.
func (s *Segmenter) Split(ctx context.Context, path string, track func(string)) ([]domain.AudioSegment, error) {
	if track == nil {
		track = func(string) {}
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apierr.NotFound(path)
		}
		return nil, fmt.Errorf("stat audio: %w", err)
	}
	if info.IsDir() {
		return nil, apierr.Validation(fmt.Sprintf("audio path is a directory: %s", path))
	}

	totalMs, err := s.media.ProbeDurationMs(ctx, path)
	if err != nil {
		return nil, err
	}
	if totalMs <= 0 {
		return nil, apierr.Validation(fmt.Sprintf("audio has no duration: %s", path))
	}

	maxBytes := int64(s.cfg.MaxMB) * 1024 * 1024
	numParts := max(
		NumParts(info.Size(), maxBytes),
		NumParts(EncodedBytes(totalMs, s.cfg.BitrateKbps), maxBytes),
	)
	if numParts == 1 {
		dst := PartPath(path, 0)
		track(dst)
		if err := s.media.ExportSpan(ctx, path, dst, 0, 0); err != nil {
			return nil, err
		}
		s.log.Info("audio in one part", "path", path, "size_bytes", info.Size())
		return []domain.AudioSegment{{SequenceIndex: 0, FilePath: dst, StartMs: 0, DurationMs: totalMs}}, nil
	}

	spans := PlanSpans(totalMs, numParts)
	s.log.Info("splitting audio",
		"path", path,
		"size_mb", float64(info.Size())/(1024*1024),
		"num_parts", numParts,
		"segments", len(spans),
	)

	out := make([]domain.AudioSegment, 0, len(spans))
	for i, sp := range spans {
		dst := PartPath(path, i)
		track(dst)
		if err := s.media.ExportSpan(ctx, path, dst, sp.StartMs, sp.LengthMs()); err != nil {
			return nil, err
		}
		out = append(out, domain.AudioSegment{
			SequenceIndex: i,
			FilePath:      dst,
			StartMs:       sp.StartMs,
			DurationMs:    sp.LengthMs(),
		})
	}
	return out, nil
}
