package synth

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/yungbote/omya-backend/internal/modules/coursegen/llm"
	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

func wellFormedQuiz(n int) string {
	blocks := make([]string, n)
	for i := range blocks {
		blocks[i] = fmt.Sprintf("%d. **Question:** Q%d?\n- A) a\n- B) b\n- C) c\n- D) d\n- Answer: %c", i+1, i+1, 'A'+i%4)
	}
	return strings.Join(blocks, "\n\n")
}

func TestValidateQuizAcceptsWellFormed(t *testing.T) {
	if p := ValidateQuiz(wellFormedQuiz(20), 20); p != nil {
		t.Fatalf("problems: %v", p)
	}
	if p := ValidateQuiz("\n"+wellFormedQuiz(3)+"\n", 3); p != nil {
		t.Fatalf("surrounding newlines: %v", p)
	}
}

func TestValidateQuizDetectsDeviations(t *testing.T) {
	good := wellFormedQuiz(2)
	cases := map[string]string{
		"count":          wellFormedQuiz(3),
		"double blank":   strings.Replace(good, "\n\n", "\n\n\n", 1),
		"bold answer":    strings.Replace(good, "- Answer: A", "- **Answer:** A", 1),
		"explained":      strings.Replace(good, "- Answer: A", "- Answer: A because", 1),
		"choice variant": strings.Replace(good, "- B) b", "- B. b", 1),
		"numbering":      strings.Replace(good, "2. **Question:**", "3. **Question:**", 1),
		"missing choice": strings.Replace(good, "\n- C) c", "", 1),
		"blank in block": strings.Replace(good, "\n- A) a", "\n\n- A) a", 1),
		"lowercase":      strings.Replace(good, "- Answer: A", "- Answer: a", 1),
		"empty":          "   ",
	}
	for name, text := range cases {
		if p := ValidateQuiz(text, 2); len(p) == 0 {
			t.Fatalf("%s: expected problems", name)
		}
	}
}

func TestValidateQuizNamesDoubleBlankGap(t *testing.T) {
	text := strings.Replace(wellFormedQuiz(3), "- Answer: B\n\n", "- Answer: B\n\n\n", 1)
	p := ValidateQuiz(text, 3)
	if len(p) != 1 {
		t.Fatalf("problems: want=1 got=%v", p)
	}
	want := "more than one blank line between questions 2 and 3"
	if p[0].Block != 0 || p[0].String() != want {
		t.Fatalf("problem: want=%q got=%+v", want, p[0])
	}
}

func TestRepairQuizKeepsWellFormed(t *testing.T) {
	good := wellFormedQuiz(5)
	if got := RepairQuiz(good); got != good {
		t.Fatalf("repair changed valid quiz:\n%s", got)
	}
}

func TestRepairQuizFixesDrift(t *testing.T) {
	drifted := "Voici le QCM demandé :\n\n```markdown\n" +
		"**1. Question:** Qu'est-ce qu'un octet ?\n\n" +
		"A. 8 bits\n" +
		"B. 16 bits\n" +
		"- C: 4 bits\n" +
		"- **D)** 2 bits\n" +
		"- **Answer:** A (un octet vaut 8 bits)\n\n\n" +
		"2) Question: Base du binaire ?\n" +
		"- A) 2\n- B) 8\n- C) 10\n- D) 16\n" +
		"Réponse : a\n" +
		"```\n\nBonne chance !"
	got := RepairQuiz(drifted)
	want := "1. **Question:** Qu'est-ce qu'un octet ?\n- A) 8 bits\n- B) 16 bits\n- C) 4 bits\n- D) 2 bits\n- Answer: A\n\n" +
		"2. **Question:** Base du binaire ?\n- A) 2\n- B) 8\n- C) 10\n- D) 16\n- Answer: A"
	if got != want {
		t.Fatalf("RepairQuiz:\nwant=%q\ngot =%q", want, got)
	}
	if p := ValidateQuiz(got, 2); p != nil {
		t.Fatalf("repaired quiz still invalid: %v", p)
	}
}

func TestRepairQuizRenumbers(t *testing.T) {
	in := strings.Replace(wellFormedQuiz(3), "2. **Question:**", "7. **Question:**", 1)
	if p := ValidateQuiz(RepairQuiz(in), 3); p != nil {
		t.Fatalf("renumbered quiz invalid: %v", p)
	}
}

type fixedGen struct {
	out  string
	reqs []llm.Request
}

func (f *fixedGen) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.out, nil
}

func TestQuizValidationModes(t *testing.T) {
	drifted := strings.Replace(wellFormedQuiz(2), "- Answer: B", "- **Answer:** B", 1)
	broken := "1. **Question:** only a question"

	s := New(logger.Nop(), &fixedGen{out: drifted}, Options{QuizQuestions: 2, QuizValidation: QuizValidationRepair})
	out, err := s.Quiz(context.Background(), "course", "fr")
	if err != nil || out.Text != wellFormedQuiz(2) || len(out.Problems) != 0 {
		t.Fatalf("repair mode: out=%+v err=%v", out, err)
	}

	s = New(logger.Nop(), &fixedGen{out: broken}, Options{QuizQuestions: 2, QuizValidation: QuizValidationRepair})
	out, err = s.Quiz(context.Background(), "course", "fr")
	if err != nil || len(out.Problems) == 0 {
		t.Fatalf("repair mode with residual problems: out=%+v err=%v", out, err)
	}

	s = New(logger.Nop(), &fixedGen{out: broken}, Options{QuizQuestions: 2, QuizValidation: QuizValidationStrict})
	if _, err := s.Quiz(context.Background(), "course", "fr"); !apierr.IsKind(err, apierr.KindFormatCompliance) {
		t.Fatalf("strict mode: want format_compliance got=%v", err)
	}

	s = New(logger.Nop(), &fixedGen{out: drifted}, Options{QuizQuestions: 2, QuizValidation: QuizValidationOff})
	out, err = s.Quiz(context.Background(), "course", "fr")
	if err != nil || out.Text != drifted {
		t.Fatalf("off mode: out=%+v err=%v", out, err)
	}
}

func TestStageRequests(t *testing.T) {
	gen := &fixedGen{out: "x"}
	s := New(logger.Nop(), gen, Options{CourseModel: "cm", QuizModel: "qm", ExercisesModel: "em", QuizValidation: QuizValidationOff})
	ctx := context.Background()
	if _, err := s.Course(ctx, "outline", "T", "en"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Quiz(ctx, "course", "en"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Exercises(ctx, "course", "en"); err != nil {
		t.Fatal(err)
	}
	want := []struct {
		stage, model string
		temp         float64
	}{{"course", "cm", 0.4}, {"quiz", "qm", 0.3}, {"exercises", "em", 0.4}}
	for i, w := range want {
		r := gen.reqs[i]
		if r.Stage != w.stage || r.Model != w.model || r.Temperature != w.temp {
			t.Fatalf("request %d: want=%+v got stage=%s model=%s temp=%v", i, w, r.Stage, r.Model, r.Temperature)
		}
	}
	if !strings.Contains(gen.reqs[1].Messages[1].Content, "quiz with 20 questions") {
		t.Fatalf("default question count not used")
	}
}

func TestParseQuizValidation(t *testing.T) {
	for in, want := range map[string]QuizValidation{"": QuizValidationRepair, "STRICT": QuizValidationStrict, "off": QuizValidationOff} {
		got, err := ParseQuizValidation(in)
		if err != nil || got != want {
			t.Fatalf("ParseQuizValidation(%q): want=%s got=%s err=%v", in, want, got, err)
		}
	}
	if _, err := ParseQuizValidation("lenient"); err == nil {
		t.Fatalf("ParseQuizValidation: expected error")
	}
}
