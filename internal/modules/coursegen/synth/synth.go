package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/omya-backend/internal/modules/coursegen/llm"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/prompts"
	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/platform/logger"
)

type QuizValidation string

const (
	// QuizValidationOff returns generator output untouched.
	QuizValidationOff QuizValidation = "off"
	// QuizValidationRepair repairs, then accepts with a warning if problems remain.
	QuizValidationRepair QuizValidation = "repair"
	// QuizValidationStrict repairs, then fails with format_compliance if problems remain.
	QuizValidationStrict QuizValidation = "strict"

	DefaultQuizQuestions = 20
	DefaultExercises     = 3
)

func ParseQuizValidation(s string) (QuizValidation, error) {
	switch v := QuizValidation(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return QuizValidationRepair, nil
	case QuizValidationOff, QuizValidationRepair, QuizValidationStrict:
		return v, nil
	default:
		return "", fmt.Errorf("unknown quiz validation mode %q", s)
	}
}

type Options struct {
	CourseModel    string
	QuizModel      string
	ExercisesModel string
	QuizQuestions  int
	Exercises      int
	QuizValidation QuizValidation
}

// Synthesizer turns an outline into a course, and a course into a quiz and
// exercises.
type Synthesizer struct {
	log  *logger.Logger
	gen  llm.Generator
	opts Options
}

func New(log *logger.Logger, gen llm.Generator, opts Options) *Synthesizer {
	if opts.QuizQuestions <= 0 {
		opts.QuizQuestions = DefaultQuizQuestions
	}
	if opts.Exercises <= 0 {
		opts.Exercises = DefaultExercises
	}
	if opts.QuizValidation == "" {
		opts.QuizValidation = QuizValidationRepair
	}
	return &Synthesizer{log: log.With("service", "CourseSynthesizer"), gen: gen, opts: opts}
}

func (s *Synthesizer) Course(ctx context.Context, outline, titleHint, language string) (string, error) {
	return s.gen.Generate(ctx, llm.Request{
		Stage:       "course",
		Model:       s.opts.CourseModel,
		Temperature: prompts.TempCourse,
		Messages:    prompts.Course(outline, titleHint, language),
	})
}

type QuizOutput struct {
	Text     string
	Problems []QuizProblem
}

func (s *Synthesizer) Quiz(ctx context.Context, course, language string) (*QuizOutput, error) {
	raw, err := s.gen.Generate(ctx, llm.Request{
		Stage:       "quiz",
		Model:       s.opts.QuizModel,
		Temperature: prompts.TempQuiz,
		Messages:    prompts.Quiz(course, s.opts.QuizQuestions, language),
	})
	if err != nil {
		return nil, err
	}
	return s.checkQuiz(raw)
}

func (s *Synthesizer) checkQuiz(raw string) (*QuizOutput, error) {
	n := s.opts.QuizQuestions
	if s.opts.QuizValidation == QuizValidationOff {
		return &QuizOutput{Text: raw, Problems: ValidateQuiz(raw, n)}, nil
	}

	text := raw
	problems := ValidateQuiz(raw, n)
	if len(problems) > 0 {
		if repaired := RepairQuiz(raw); repaired != "" {
			text = repaired
			problems = ValidateQuiz(text, n)
		}
	}
	if len(problems) == 0 {
		return &QuizOutput{Text: text}, nil
	}
	if s.opts.QuizValidation == QuizValidationStrict {
		return nil, apierr.FormatCompliance("quiz", fmt.Errorf("%d format problems, first: %s", len(problems), problems[0]))
	}
	s.log.Warn("quiz accepted with format problems", "problems", len(problems), "first", problems[0].String())
	return &QuizOutput{Text: text, Problems: problems}, nil
}

func (s *Synthesizer) Exercises(ctx context.Context, course, language string) (string, error) {
	return s.gen.Generate(ctx, llm.Request{
		Stage:       "exercises",
		Model:       s.opts.ExercisesModel,
		Temperature: prompts.TempExercises,
		Messages:    prompts.Exercises(course, s.opts.Exercises, language),
	})
}
