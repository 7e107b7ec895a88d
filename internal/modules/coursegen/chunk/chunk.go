package chunk

import (
	"regexp"
	"strings"

	"github.com/yungbote/omya-backend/internal/domain"
)

const (
	DefaultSentencesPerChunk = 12
	DefaultTargetTokens      = 900
)

// A sentence ends at ., ! or ? followed by whitespace. The punctuation stays
// with the sentence it closes.
var sentenceBoundary = regexp.MustCompile(`[.!?][\s\p{Z}]+`)

// SplitSentences splits trimmed text into non-empty sentences.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var out []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		if s := text[start : loc[0]+1]; s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

type Config struct {
	SentencesPerChunk int
	TargetTokens      int
}

type Chunker struct {
	cfg Config
	est TokenEstimator
}

func New(cfg Config, est TokenEstimator) *Chunker {
	if cfg.SentencesPerChunk <= 0 {
		cfg.SentencesPerChunk = DefaultSentencesPerChunk
	}
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = DefaultTargetTokens
	}
	if est == nil {
		est = Heuristic{}
	}
	return &Chunker{cfg: cfg, est: est}
}

// Chunk greedily packs whole sentences into chunks. A chunk is flushed before
// adding a sentence that would push it over TargetTokens or past
// SentencesPerChunk. A single sentence over budget still forms its own chunk.
func (c *Chunker) Chunk(text string) []domain.TextChunk {
	sentences := SplitSentences(text)
	var (
		out []domain.TextChunk
		buf []string
	)
	flush := func() {
		joined := strings.TrimSpace(strings.Join(buf, " "))
		out = append(out, domain.TextChunk{
			SequenceIndex:   len(out),
			Text:            joined,
			EstimatedTokens: c.est.EstimateTokens(joined),
		})
		buf = buf[:0]
	}
	for _, s := range sentences {
		if len(buf) > 0 {
			candidate := strings.TrimSpace(strings.Join(append(buf[:len(buf):len(buf)], s), " "))
			if len(buf) >= c.cfg.SentencesPerChunk || c.est.EstimateTokens(candidate) > c.cfg.TargetTokens {
				flush()
			}
		}
		buf = append(buf, s)
	}
	if len(buf) > 0 {
		flush()
	}
	return out
}

// Texts returns the chunk bodies in sequence order.
func Texts(chunks []domain.TextChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
