// Package prompts builds the chat messages for every generation stage.
package prompts

import (
	"fmt"
	"strings"

	"github.com/yungbote/omya-backend/internal/domain"
)

// Sampling temperatures per stage.
const (
	TempSummarize = 0.2
	TempReduce    = 0.2
	TempCourse    = 0.4
	TempQuiz      = 0.3
	TempExercises = 0.4
)

func pair(system, user string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}
}

func Summarize(chunk, language string) []domain.ChatMessage {
	lang := LangLabel(language)
	return pair(
		fmt.Sprintf("You are a precise academic summarizer. Output bullet points only. Always respond in %s.", lang),
		fmt.Sprintf("Summarize the following in 5-10 concise bullet points. Respond in %s.\n\n%s", lang, chunk),
	)
}

// Reduce merges per-chunk bullets, given in chunk order, into one outline.
func Reduce(summaries []string, language string) []domain.ChatMessage {
	lang := LangLabel(language)
	return pair(
		fmt.Sprintf("You merge overlapping bullets into a coherent high-level outline. Always respond in %s.", lang),
		fmt.Sprintf("Merge and deduplicate these bullet summaries into a crisp outline with sections and sub-bullets. Respond in %s.\n\n%s",
			lang, strings.Join(summaries, "\n")),
	)
}

func Course(outline, titleHint, language string) []domain.ChatMessage {
	titleLine := ""
	if t := strings.TrimSpace(titleHint); t != "" {
		titleLine = "# " + t
	}
	user := `
Write a complete, well-structured Markdown course using this outline. Requirements:
1) Start with a single H1 title.
2) Use bolded section headings (**Title**) followed by clear explanations.
3) Include short examples, formulas, or mini-cases when relevant.
4) Keep it rigorous but readable for first-year CS students.

` + titleLine + `

Outline:

` + outline + "\n"
	return pair(
		fmt.Sprintf("You are a university-level course writer. Output Markdown only. Always respond in %s.", LangLabel(language)),
		user,
	)
}

func Quiz(course string, numQuestions int, language string) []domain.ChatMessage {
	user := fmt.Sprintf(`

Generate a multiple-choice quiz with %d questions.
STRICT FORMAT — exactly 6 lines per question, no extra text, no code fences:

1. **Question:** <text>
- A) <text>
- B) <text>
- C) <text>
- D) <text>
- Answer: <A/B/C/D>

Rules:
- Use exactly "1. **Question:**", "2. **Question:**", etc. (number + dot + space)
- Choices must start with "- A) ", "- B) ", "- C) ", "- D) "
- The answer line must be "- Answer: X" (no bold, no explanation)
- No blank lines between the 6 lines of a question
- One blank line between questions
- even in other languages you use "Answer" in English for the answer line and Question in English for the question line.
- Base ONLY on this course:

%s
`, numQuestions, course)
	return pair(
		fmt.Sprintf("You are a rigorous examiner. Output Markdown only. Always respond in %s.", LangLabel(language)),
		user,
	)
}

func Exercises(course string, count int, language string) []domain.ChatMessage {
	var format strings.Builder
	for i := 1; i <= count; i++ {
		fmt.Fprintf(&format, "- **Exercise %d:** ...\n", i)
	}
	user := fmt.Sprintf(`
Write %d open-ended, challenging exercises that require analysis, application, or synthesis (no rote recall). Give clear statements and expected directions, but no full solutions.
Format:
%s
Base it ONLY on this course:

%s
`, count, format.String(), course)
	return pair(
		fmt.Sprintf("You are a university professor. Output Markdown only. Always respond in %s.", LangLabel(language)),
		user,
	)
}
