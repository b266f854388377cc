package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"evater/api/internal/exam"
	"evater/api/internal/fetch"
)

const (
	helpText          = "Send /test <test_id> to pick a test, then photos of the answer sheet. Several photos or an album are read as one sheet.\nCommands: /test, /health"
	photoAcceptedText = "Photo received. If the sheet has more pages, send them right away; I will read them together."
	maxMessageLen     = 3900
)

// formatEvaluation renders the per-question scores as a plain-text reply.
func formatEvaluation(ev exam.Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 Score: %s / %s\n\n", num(ev.Summary.AwardedTotal), num(ev.Summary.MaximumTotal))
	for _, m := range ev.Merged {
		q, fb := m.Question, m.Feedback
		label := fmt.Sprintf("Q%d", q.Number)
		if q.Number == 0 {
			label = q.ID
		}
		switch fb.Status {
		case exam.FeedbackAvailable:
			fmt.Fprintf(&b, "%s: %s/%s", label, num(fb.AwardedScore), num(fb.MaxScore))
			if fb.ErrorCategory != "" && fb.ErrorCategory != exam.NoMistake {
				fmt.Fprintf(&b, " (%s mistake)", fb.ErrorCategory)
			}
			b.WriteString("\n")
			if s := strings.TrimSpace(fb.Explanation); s != "" {
				b.WriteString("  " + s + "\n")
			}
			if s := strings.TrimSpace(fb.NextStep); s != "" {
				b.WriteString("  ➡️ " + s + "\n")
			}
		case exam.FeedbackUnattempted:
			fmt.Fprintf(&b, "%s: 0/%s, no answer found\n", label, num(fb.MaxScore))
		default:
			fmt.Fprintf(&b, "%s: not graded, feedback unavailable\n", label)
		}
	}
	if len(ev.Anomalies) > 0 {
		fmt.Fprintf(&b, "\n⚠️ %d part(s) of the sheet could not be matched to a question.", len(ev.Anomalies))
	}
	out := strings.TrimRight(b.String(), "\n")
	if len(out) > maxMessageLen {
		out = out[:maxMessageLen] + "…"
	}
	return out
}

func num(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, exam.ErrTestNotFound):
		return "Test not found. Check the test id."
	case errors.Is(err, context.DeadlineExceeded):
		return "Evaluation took too long, please try again."
	case errors.Is(err, fetch.ErrBadImage):
		return "Could not download the photo, please send it again."
	case errors.Is(err, exam.ErrOCRUnavailable):
		return "Could not read the answer sheet right now, please try again later."
	case errors.Is(err, exam.ErrGenerationUnavailable):
		return "Grading service is unavailable right now, please try again later."
	default:
		return "Error: " + err.Error()
	}
}
