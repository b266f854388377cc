package testgen

import (
	"strings"

	"evater/api/internal/exam"
)

// Normalize applies the checks the schema cannot express and fills derived
// fields. Marks are fixed by question type whatever the model proposed. A
// non-empty reason means the question must be dropped.
func Normalize(q exam.QuestionSpec, want exam.QuestionType, diff exam.Difficulty) (exam.QuestionSpec, string) {
	if q.Type != want {
		return q, "type " + string(q.Type) + " does not match requested " + string(want)
	}
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return q, "empty question text"
	}
	if q.Difficulty == "" {
		q.Difficulty = string(diff)
	}

	switch q.Type {
	case exam.MCQ:
		if len(q.Options) < 2 {
			return q, "mcq needs at least two options"
		}
		texts := map[string]bool{}
		correct := 0
		for i := range q.Options {
			q.Options[i].Text = strings.TrimSpace(q.Options[i].Text)
			key := strings.ToLower(q.Options[i].Text)
			if key == "" || texts[key] {
				return q, "mcq options must be non-empty and distinct"
			}
			texts[key] = true
			if q.Options[i].IsCorrect {
				correct++
			}
		}
		if correct == 0 {
			return q, "mcq has no correct option"
		}
		q.Answer = strings.TrimSpace(q.Answer)
		if q.Answer == "" {
			q.Answer = q.ReferenceAnswer()
		}
	case exam.TrueFalse:
		q.Options = nil
		switch strings.ToLower(strings.TrimSpace(q.Answer)) {
		case "true", "t":
			q.Answer = "True"
		case "false", "f":
			q.Answer = "False"
		default:
			return q, "true_false answer must be True or False"
		}
	default:
		q.Options = nil
		q.Answer = strings.TrimSpace(q.Answer)
		if q.Answer == "" {
			return q, "missing reference answer"
		}
	}
	q.MaxMarks = q.DefaultMarks()
	return q, ""
}
