package merge

import "evater/api/internal/exam"

// ReasonMissing marks feedback that was never produced for a question.
const ReasonMissing = "missing"

// Merge joins questions with their answer and feedback records by question id.
// The output has one entry per question, in question order. Absent answers
// become not_found records and absent feedback becomes unavailable.
func Merge(questions []exam.QuestionSpec, answers []exam.AnswerRecord, feedback []exam.FeedbackRecord) []exam.MergedResult {
	ans := make(map[string]exam.AnswerRecord, len(answers))
	for _, a := range answers {
		if _, dup := ans[a.QuestionID]; !dup {
			ans[a.QuestionID] = a
		}
	}
	fb := make(map[string]exam.FeedbackRecord, len(feedback))
	for _, f := range feedback {
		if _, dup := fb[f.QuestionID]; !dup {
			fb[f.QuestionID] = f
		}
	}

	out := make([]exam.MergedResult, 0, len(questions))
	for _, q := range questions {
		a, ok := ans[q.ID]
		if !ok {
			a = exam.MissingAnswer(q.ID, exam.ReasonNoMarker)
		}
		f, ok := fb[q.ID]
		if !ok {
			f = exam.UnavailableFeedback(q, ReasonMissing)
		}
		out = append(out, exam.MergedResult{Question: q, Answer: a, Feedback: f})
	}
	return out
}

// Summarize totals the awarded score over available and unattempted records.
// The maximum total covers every question.
func Summarize(merged []exam.MergedResult) exam.Summary {
	s := exam.Summary{
		Questions: len(merged),
		ByStatus:  map[exam.FeedbackStatus]int{},
	}
	for _, m := range merged {
		s.MaximumTotal += m.Question.MaxMarks
		s.ByStatus[m.Feedback.Status]++
		if m.Feedback.Status != exam.FeedbackUnavailable {
			s.AwardedTotal += m.Feedback.AwardedScore
		}
	}
	return s
}
