package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadPlainText(t *testing.T) {
	l := NewLoader(logger.Nop())
	got, err := l.LoadFile(write(t, "notes.txt", "Bonjour. <b>pas du html</b>"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got != "Bonjour. <b>pas du html</b>" {
		t.Fatalf("text: got=%q", got)
	}
}

func TestLoadHTMLConvertsToMarkdown(t *testing.T) {
	l := NewLoader(logger.Nop())
	got, err := l.LoadFile(write(t, "lecture.HTML", "<html><body><h1>Titre</h1><p>Un <strong>point</strong> clé.</p></body></html>"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !strings.Contains(got, "# Titre") || !strings.Contains(got, "**point**") || strings.Contains(got, "<p>") {
		t.Fatalf("markdown: got=%q", got)
	}
}

func TestLoadMissingAndInvalid(t *testing.T) {
	l := NewLoader(logger.Nop())
	if _, err := l.LoadFile(filepath.Join(t.TempDir(), "nope.txt")); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("missing: want not_found got=%v", err)
	}
	if _, err := l.LoadFile(write(t, "bin.txt", "\xff\xfe\x00")); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("invalid utf-8: want validation got=%v", err)
	}
}
