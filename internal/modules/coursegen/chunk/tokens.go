package chunk

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/yungbote/omya-backend/internal/platform/logger"
)

const (
	EstimatorHeuristic = "heuristic"
	EstimatorTiktoken  = "tiktoken"

	tiktokenEncoding = "cl100k_base"
)

type TokenEstimator interface {
	EstimateTokens(text string) int
}

// Heuristic assumes roughly four characters per token.
type Heuristic struct{}

func (Heuristic) EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func (t *Tiktoken) EstimateTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// NewEstimator returns the estimator named by kind. A tiktoken encoding that
// cannot be loaded degrades to the heuristic.
func NewEstimator(log *logger.Logger, kind string) TokenEstimator {
	if kind == EstimatorHeuristic {
		return Heuristic{}
	}
	enc, err := tiktoken.GetEncoding(tiktokenEncoding)
	if err != nil {
		log.Warn("tiktoken unavailable; using heuristic token estimate", "encoding", tiktokenEncoding, "error", err)
		return Heuristic{}
	}
	return &Tiktoken{enc: enc}
}
