package synth

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// A well-formed quiz is N blocks separated by exactly one blank line:
//
//	1. **Question:** <text>
//	- A) <text>
//	- B) <text>
//	- C) <text>
//	- D) <text>
//	- Answer: <A|B|C|D>
var (
	strictQuestion = regexp.MustCompile(`^(\d+)\. \*\*Question:\*\* \S.*$`)
	strictAnswer   = regexp.MustCompile(`^- Answer: [ABCD]$`)
	strictChoices  = [4]*regexp.Regexp{
		regexp.MustCompile(`^- A\) \S.*$`),
		regexp.MustCompile(`^- B\) \S.*$`),
		regexp.MustCompile(`^- C\) \S.*$`),
		regexp.MustCompile(`^- D\) \S.*$`),
	}
)

type QuizProblem struct {
	// Block is the 1-based question block, or 0 for whole-document problems.
	Block   int
	Message string
}

func (p QuizProblem) String() string {
	if p.Block == 0 {
		return p.Message
	}
	return fmt.Sprintf("question %d: %s", p.Block, p.Message)
}

// ValidateQuiz checks text against the quiz grammar and returns every
// deviation found. A nil result means the quiz is well formed with exactly n
// questions.
func ValidateQuiz(text string, n int) []QuizProblem {
	var problems []QuizProblem
	add := func(block int, format string, args ...any) {
		problems = append(problems, QuizProblem{Block: block, Message: fmt.Sprintf(format, args...)})
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	trimmed := strings.Trim(text, "\n")
	if strings.TrimSpace(trimmed) == "" {
		add(0, "quiz is empty")
		return problems
	}

	var blocks [][]string
	var cur []string
	blankRun := 0
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.TrimSpace(line) == "" {
			blankRun++
			if blankRun == 2 {
				add(0, "more than one blank line between questions %d and %d", len(blocks), len(blocks)+1)
			}
			if len(cur) > 0 {
				blocks = append(blocks, cur)
				cur = nil
			}
			continue
		}
		blankRun = 0
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}

	if len(blocks) != n {
		add(0, "want %d questions, found %d blocks", n, len(blocks))
	}
	for i, b := range blocks {
		num := i + 1
		if len(b) != 6 {
			add(num, "want 6 lines, found %d", len(b))
		}
		if m := strictQuestion.FindStringSubmatch(b[0]); m == nil {
			add(num, "malformed question line %q", b[0])
		} else if got, _ := strconv.Atoi(m[1]); got != num {
			add(num, "numbered %d", got)
		}
		for c := 0; c < 4; c++ {
			if c+1 >= len(b) {
				break
			}
			if !strictChoices[c].MatchString(b[c+1]) {
				add(num, "malformed choice %c line %q", 'A'+c, b[c+1])
			}
		}
		if len(b) >= 6 && !strictAnswer.MatchString(b[5]) {
			add(num, "malformed answer line %q", b[5])
		}
	}
	return problems
}

var (
	fenceLine   = regexp.MustCompile("^\\s*```")
	looseQ      = regexp.MustCompile(`(?i)^\s*[#*_\s]*(\d+)\s*[.)]\s*[*_\s]*(?:question|q)\s*(?:\d+\s*)?[*_\s]*[:.]\s*[*_\s]*(.*?)\s*$`)
	looseNumQ   = regexp.MustCompile(`^\s*[#*_\s]*(\d+)\s*[.)]\s*[*_]*\s*(\S.*?)\s*$`)
	looseChoice = regexp.MustCompile(`^\s*(?:[-*•]\s*)?[*_]*\(?([ABCDabcd])\s*[).:][*_]*\s+(.*?)\s*$`)
	looseAnswer = regexp.MustCompile(`(?i)^\s*(?:[-*•]\s*)?[*_]*\s*(?:answer|correct answer|réponse|respuesta|antwort|risposta)\s*[*_]*\s*[:=]\s*[*_]*\s*\(?([ABCDabcd])\b`)
)

// RepairQuiz normalises the common ways a generator drifts from the quiz
// grammar: code fences, prose around the questions, blank lines inside a
// block, bolded or explained answers, and "A." or "A:" choice markers.
// Questions are renumbered in order of appearance. Unrecognised lines are
// dropped.
func RepairQuiz(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	type block struct {
		question string
		choices  [4]string
		answer   string
	}
	var blocks []*block
	var cur *block

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || fenceLine.MatchString(line) {
			continue
		}
		if m := looseAnswer.FindStringSubmatch(line); m != nil {
			if cur != nil && cur.answer == "" {
				cur.answer = strings.ToUpper(m[1])
			}
			continue
		}
		if m := looseQ.FindStringSubmatch(line); m != nil && m[2] != "" {
			cur = &block{question: unbold(m[2])}
			blocks = append(blocks, cur)
			continue
		}
		if m := looseChoice.FindStringSubmatch(line); m != nil && cur != nil {
			idx := int(strings.ToUpper(m[1])[0] - 'A')
			if cur.choices[idx] == "" {
				cur.choices[idx] = m[2]
			}
			continue
		}
		// "3. What is ...?" without the Question marker starts a block too.
		if m := looseNumQ.FindStringSubmatch(line); m != nil && (cur == nil || cur.answer != "") {
			cur = &block{question: unbold(m[2])}
			blocks = append(blocks, cur)
			continue
		}
	}

	out := make([]string, 0, len(blocks))
	for i, b := range blocks {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d. **Question:** %s", i+1, b.question)
		for c, choice := range b.choices {
			if choice != "" {
				fmt.Fprintf(&sb, "\n- %c) %s", 'A'+c, choice)
			}
		}
		if b.answer != "" {
			fmt.Fprintf(&sb, "\n- Answer: %s", b.answer)
		}
		out = append(out, sb.String())
	}
	return strings.Join(out, "\n\n")
}

// unbold drops a dangling "**" left over from a fully bolded question line.
func unbold(s string) string {
	s = strings.TrimSpace(s)
	if strings.Count(s, "**")%2 == 1 {
		s = strings.TrimSpace(strings.TrimSuffix(s, "**"))
	}
	return s
}
