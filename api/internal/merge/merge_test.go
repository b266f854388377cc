package merge

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evater/api/internal/exam"
)

var qs = []exam.QuestionSpec{
	{ID: "q1", Number: 1, Type: exam.MCQ, MaxMarks: 1},
	{ID: "q2", Number: 2, Type: exam.ShortAnswer, MaxMarks: 2},
	{ID: "q3", Number: 3, Type: exam.LongAnswer, MaxMarks: 3},
}

func TestMergeOrderAndMarkers(t *testing.T) {
	answers := []exam.AnswerRecord{
		{QuestionID: "q3", Text: "long", Status: exam.AnswerFound, PageIndex: 1},
		{QuestionID: "q1", Text: "a", Status: exam.AnswerFound},
		{QuestionID: "zz", Text: "stray", Status: exam.AnswerFound},
	}
	feedback := []exam.FeedbackRecord{
		{QuestionID: "q1", AwardedScore: 1, MaxScore: 1, Status: exam.FeedbackAvailable},
		{QuestionID: "q1", AwardedScore: 0, MaxScore: 1, Status: exam.FeedbackAvailable},
	}

	out := Merge(qs, answers, feedback)
	require.Len(t, out, len(qs))
	for i, m := range out {
		assert.Equal(t, qs[i].ID, m.Question.ID)
		assert.Equal(t, qs[i].ID, m.Answer.QuestionID)
		assert.Equal(t, qs[i].ID, m.Feedback.QuestionID)
	}

	assert.Equal(t, 1.0, out[0].Feedback.AwardedScore, "first record wins")
	if diff := cmp.Diff(exam.MissingAnswer("q2", exam.ReasonNoMarker), out[1].Answer); diff != "" {
		t.Errorf("missing answer (-want +got):\n%s", diff)
	}
	assert.Equal(t, exam.FeedbackUnavailable, out[1].Feedback.Status)
	assert.Equal(t, ReasonMissing, out[1].Feedback.Reason)
	assert.Equal(t, 3.0, out[2].Feedback.MaxScore)
}

func TestMergeEmpty(t *testing.T) {
	out := Merge(nil, nil, nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestSummarize(t *testing.T) {
	merged := []exam.MergedResult{
		{Question: qs[0], Feedback: exam.FeedbackRecord{AwardedScore: 1, Status: exam.FeedbackAvailable}},
		{Question: qs[1], Feedback: exam.FeedbackRecord{AwardedScore: 0, Status: exam.FeedbackUnattempted}},
		{Question: qs[2], Feedback: exam.FeedbackRecord{AwardedScore: 9, Status: exam.FeedbackUnavailable}},
	}
	s := Summarize(merged)
	assert.Equal(t, 1.0, s.AwardedTotal)
	assert.Equal(t, 6.0, s.MaximumTotal)
	assert.Equal(t, 3, s.Questions)
	assert.Equal(t, map[exam.FeedbackStatus]int{
		exam.FeedbackAvailable: 1, exam.FeedbackUnattempted: 1, exam.FeedbackUnavailable: 1,
	}, s.ByStatus)
}
