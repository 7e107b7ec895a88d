package logger

import "testing"

func TestSanitizeKVsRedactsSecretKeys(t *testing.T) {
	got := sanitizeKVs([]interface{}{"OPENAI_API_KEY", "sk-123", "stage", "quiz", "dangling"})
	if len(got) != 5 {
		t.Fatalf("len: want=5 got=%d", len(got))
	}
	if got[1] != "[REDACTED]" {
		t.Fatalf("api key: want=[REDACTED] got=%v", got[1])
	}
	if got[3] != "quiz" {
		t.Fatalf("stage: want=quiz got=%v", got[3])
	}
	if got[4] != "dangling" {
		t.Fatalf("dangling key: want=dangling got=%v", got[4])
	}
}

func TestNewTestModeIsNop(t *testing.T) {
	log, err := New("test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.With("service", "x").Info("discarded", "k", "v")
}
