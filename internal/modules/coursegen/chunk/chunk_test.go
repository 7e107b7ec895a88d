package chunk

import (
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/yungbote/omya-backend/internal/platform/logger"
)

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"One. Two! Three? Four", []string{"One.", "Two!", "Three?", "Four"}},
		{"  Padded.  \n\n Next line.  ", []string{"Padded.", "Next line."}},
		{"v1.2 is out. Yes", []string{"v1.2 is out.", "Yes"}},
		{"Bonjour. Ça va ?", []string{"Bonjour.", "Ça va ?"}},
		{"Wait... what?", []string{"Wait...", "what?"}},
	}
	for _, tc := range cases {
		if got := SplitSentences(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("SplitSentences(%q): want=%q got=%q", tc.in, tc.want, got)
		}
	}
}

func TestChunkSentenceLimitExample(t *testing.T) {
	c := New(Config{SentencesPerChunk: 2, TargetTokens: 900}, Heuristic{})
	got := Texts(c.Chunk("Sentence one. Sentence two. Sentence three."))
	want := []string{"Sentence one. Sentence two.", "Sentence three."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("chunks: want=%q got=%q", want, got)
	}
}

func TestChunkEmptyText(t *testing.T) {
	if got := New(Config{}, nil).Chunk(" \n\t "); len(got) != 0 {
		t.Fatalf("chunks: want none got=%v", got)
	}
}

func TestChunkBoundsCoverageOrder(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("Le cours ")
		sb.WriteString(strings.Repeat("détaille ", i%17))
		sb.WriteString("un point. ")
	}
	text := sb.String()
	cfg := Config{SentencesPerChunk: 5, TargetTokens: 60}
	est := Heuristic{}
	chunks := New(cfg, est).Chunk(text)

	var all []string
	for i, ch := range chunks {
		if ch.SequenceIndex != i {
			t.Fatalf("chunk %d: sequence index %d", i, ch.SequenceIndex)
		}
		sents := SplitSentences(ch.Text)
		if len(sents) == 0 || len(sents) > cfg.SentencesPerChunk {
			t.Fatalf("chunk %d: %d sentences", i, len(sents))
		}
		if len(sents) > 1 && est.EstimateTokens(ch.Text) > cfg.TargetTokens {
			t.Fatalf("chunk %d: %d tokens over budget", i, est.EstimateTokens(ch.Text))
		}
		if ch.EstimatedTokens != est.EstimateTokens(ch.Text) {
			t.Fatalf("chunk %d: estimated tokens not recorded", i)
		}
		all = append(all, sents...)
	}
	if want := SplitSentences(text); !reflect.DeepEqual(all, want) {
		t.Fatalf("coverage/order broken: want %d sentences got %d", len(want), len(all))
	}
}

func TestChunkLongSentenceStandsAlone(t *testing.T) {
	long := strings.Repeat("word ", 400) + "end."
	text := "Short one. " + long + " Short two."
	chunks := New(Config{SentencesPerChunk: 12, TargetTokens: 50}, Heuristic{}).Chunk(text)
	got := Texts(chunks)
	want := []string{"Short one.", long, "Short two."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("chunks: want %d got %d (%q)", len(want), len(got), got)
	}
}

func TestHeuristicEstimate(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int
	}{
		{"", 1},
		{"abc", 1},
		{"abcdefgh", 2},
		{"éééééééé", 2},
	} {
		if got := (Heuristic{}).EstimateTokens(tc.in); got != tc.want {
			t.Fatalf("EstimateTokens(%q): want=%d got=%d", tc.in, tc.want, got)
		}
	}
}

func TestNewEstimatorHeuristic(t *testing.T) {
	if _, ok := NewEstimator(logger.Nop(), EstimatorHeuristic).(Heuristic); !ok {
		t.Fatalf("NewEstimator(heuristic): wrong type")
	}
}

func TestTiktokenEstimator(t *testing.T) {
	// Loading the encoding may download the BPE ranks.
	if os.Getenv("TEST_TIKTOKEN") == "" {
		t.Skip("TEST_TIKTOKEN not set")
	}
	est := NewEstimator(logger.Nop(), EstimatorTiktoken)
	if _, ok := est.(*Tiktoken); !ok {
		t.Fatalf("NewEstimator(tiktoken): fell back to %T", est)
	}
	if got := est.EstimateTokens("hello world"); got != 2 {
		t.Fatalf("tokens: want=2 got=%d", got)
	}
}
