package output

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/omya-backend/internal/domain"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

func sampleResult() *domain.PipelineResult {
	return &domain.PipelineResult{
		RunID:          "run-1",
		Language:       "fr",
		Transcript:     "transcription",
		Course:         "# Cours\n\n**Partie 1** : introduction <à> l'algèbre\n- point",
		Quiz:           "1. **Question:** Q?",
		Exercises:      "- **Exercise 1:** x",
		ChunkPreview:   []string{"c1", "c2"},
		SummaryPreview: []string{"s1"},
		Models:         domain.ModelSet{Course: "gpt-4o", Summary: "gpt-4o-mini", Quiz: "gpt-4o", Exercises: "gpt-4o", Transcribe: "whisper-1"},
	}
}

func TestSaveLocal(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "out")
	w := NewWriter(logger.Nop(), LocalStore{})
	saved, err := w.Save(context.Background(), base, sampleResult(), Options{})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	wantKinds := []string{"transcript", "course", "qcm", "exercises", "meta"}
	if len(saved) != len(wantKinds) {
		t.Fatalf("saved: want=%d got=%d", len(wantKinds), len(saved))
	}
	for i, k := range wantKinds {
		if saved[i].Kind != k {
			t.Fatalf("saved[%d]: want kind %s got=%+v", i, k, saved[i])
		}
	}
	course, err := os.ReadFile(base + "_course.md")
	if err != nil || string(course) != sampleResult().Course {
		t.Fatalf("course file: %q err=%v", course, err)
	}

	raw, err := os.ReadFile(base + "_meta.json")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("meta json: %v", err)
	}
	models, _ := m["models"].(map[string]any)
	if models["qcm"] != "gpt-4o" || models["transcribe"] != "whisper-1" || models["summary"] != "gpt-4o-mini" {
		t.Fatalf("meta models: %v", models)
	}
	if _, ok := m["chunks_preview"]; !ok {
		t.Fatalf("meta missing chunks_preview: %s", raw)
	}
	if _, ok := m["summaries_preview"]; !ok {
		t.Fatalf("meta missing summaries_preview: %s", raw)
	}
}

func TestSaveDocx(t *testing.T) {
	base := filepath.Join(t.TempDir(), "out")
	w := NewWriter(logger.Nop(), nil)
	saved, err := w.Save(context.Background(), base, sampleResult(), Options{Docx: true, Title: "Algèbre"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if last := saved[len(saved)-1]; last.Kind != "course_docx" || last.Location != base+"_course.docx" {
		t.Fatalf("docx artifact: got=%+v", last)
	}
	raw, err := os.ReadFile(base + "_course.docx")
	if err != nil {
		t.Fatalf("read docx: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("docx is not a zip: %v", err)
	}
	var body string
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, _ := f.Open()
			b, _ := io.ReadAll(rc)
			_ = rc.Close()
			body = string(b)
		}
	}
	if !strings.Contains(body, "Algèbre") || !strings.Contains(body, "Partie 1") {
		t.Fatalf("document.xml missing text")
	}
}

type fakeBucket struct {
	objects map[string][]byte
}

func (f *fakeBucket) UploadFile(ctx context.Context, key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = b
	return nil
}

func (f *fakeBucket) URI(key string) string { return "gs://omya/" + key }
func (f *fakeBucket) Close() error          { return nil }

func (f *fakeBucket) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func TestSaveBucket(t *testing.T) {
	bucket := &fakeBucket{}
	w := NewWriter(logger.Nop(), BucketStore{Bucket: bucket})
	saved, err := w.Save(context.Background(), "./runs/lecture", sampleResult(), Options{})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved[0].Location != "gs://omya/runs/lecture_transcript.txt" {
		t.Fatalf("location: got=%s", saved[0].Location)
	}
	if string(bucket.objects["runs/lecture_exercises.md"]) != "- **Exercise 1:** x" {
		t.Fatalf("uploaded objects: %v", bucket.objects)
	}
}

func TestMetaKeepsNonASCII(t *testing.T) {
	res := sampleResult()
	res.ChunkPreview = []string{"élève <b>"}
	raw, err := marshalMeta(res)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "élève <b>") {
		t.Fatalf("meta escaped text: %s", raw)
	}
}
