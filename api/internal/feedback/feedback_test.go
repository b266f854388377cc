package feedback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evater/api/internal/exam"
	"evater/api/internal/llm"
	"evater/api/internal/prompt"
)

func init() { llm.RetryPause = 0 }

var question = exam.QuestionSpec{ID: "q1", Number: 1, Type: exam.ShortAnswer, Text: "What is photosynthesis?", Answer: "Plants make food using sunlight.", MaxMarks: 2}

var answered = exam.AnswerRecord{QuestionID: "q1", Text: "plants make food from light", PageIndex: 0, Status: exam.AnswerFound}

func scoreGen(score float64) llm.GenerateFunc {
	return func(ctx context.Context, req llm.JSONRequest) ([]byte, error) {
		return []byte(fmt.Sprintf(`{"explanation":"Good","awarded_score":%g,"error_type":"careless","next_step":"Revise chlorophyll"}`, score)), nil
	}
}

func newGenerator(t *testing.T, gen llm.TextGenerator) *Generator {
	t.Helper()
	g, err := New(gen, prompt.New(""), DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestUnattemptedSkipsModel(t *testing.T) {
	var calls atomic.Int32
	gen := llm.GenerateFunc(func(ctx context.Context, req llm.JSONRequest) ([]byte, error) {
		calls.Add(1)
		return nil, errors.New("must not be called")
	})
	g := newGenerator(t, gen)

	rec := g.Evaluate(context.Background(), question, exam.MissingAnswer("q1", exam.ReasonNoMarker))
	assert.Equal(t, exam.FeedbackUnattempted, rec.Status)
	assert.Equal(t, exam.Unattempted, rec.ErrorCategory)
	assert.Zero(t, rec.AwardedScore)
	assert.Equal(t, 2.0, rec.MaxScore)
	assert.Equal(t, noAnswerExplanation, rec.Explanation)
	assert.Zero(t, calls.Load())
}

func TestScorePolicy(t *testing.T) {
	tests := []struct {
		name   string
		score  float64
		status exam.FeedbackStatus
		want   float64
	}{
		{"in range", 1.5, exam.FeedbackAvailable, 1.5},
		{"zero", 0, exam.FeedbackAvailable, 0},
		{"negative", -1, exam.FeedbackUnavailable, 0},
		{"small overrun clamped", 2.5, exam.FeedbackAvailable, 2},
		{"gross overrun", 5, exam.FeedbackUnavailable, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newGenerator(t, scoreGen(tt.score)).Evaluate(context.Background(), question, answered)
			assert.Equal(t, tt.status, rec.Status)
			assert.Equal(t, tt.want, rec.AwardedScore)
			assert.Equal(t, "q1", rec.QuestionID)
			if tt.status == exam.FeedbackUnavailable {
				assert.NotEmpty(t, rec.Reason)
			} else {
				assert.Equal(t, exam.Careless, rec.ErrorCategory)
				assert.Equal(t, "Revise chlorophyll", rec.NextStep)
			}
		})
	}
}

func TestIdempotentUnderDeterministicModel(t *testing.T) {
	g := newGenerator(t, scoreGen(1))
	a := g.Evaluate(context.Background(), question, answered)
	b := g.Evaluate(context.Background(), question, answered)
	assert.Equal(t, a, b)
}

func TestRetryOnInvalidOutput(t *testing.T) {
	var calls atomic.Int32
	gen := llm.GenerateFunc(func(ctx context.Context, req llm.JSONRequest) ([]byte, error) {
		if calls.Add(1) == 1 {
			return []byte(`{"explanation":"missing the rest"}`), nil
		}
		return scoreGen(2)(ctx, req)
	})
	rec := newGenerator(t, gen).Evaluate(context.Background(), question, answered)
	assert.Equal(t, exam.FeedbackAvailable, rec.Status)
	assert.EqualValues(t, 2, calls.Load())
}

func TestInvalidTwiceIsUnavailable(t *testing.T) {
	gen := llm.GenerateFunc(func(ctx context.Context, req llm.JSONRequest) ([]byte, error) {
		return []byte(`not json`), nil
	})
	g := newGenerator(t, gen)
	rec, err := g.evaluate(context.Background(), question, answered)
	assert.NoError(t, err, "validation failures are not transport failures")
	assert.Equal(t, exam.FeedbackUnavailable, rec.Status)
}

func TestEvaluateAll(t *testing.T) {
	qs := []exam.QuestionSpec{
		question,
		{ID: "q2", Number: 2, Type: exam.MCQ, Text: "Pick", MaxMarks: 1, Options: []exam.Option{{Text: "a", IsCorrect: true}, {Text: "b"}}},
		{ID: "q3", Number: 3, Type: exam.LongAnswer, Text: "Explain", Answer: "x", MaxMarks: 3},
	}
	answers := map[string]exam.AnswerRecord{
		"q1": answered,
		"q2": {QuestionID: "q2", Text: "a", Status: exam.AnswerFound},
	}
	recs, err := newGenerator(t, scoreGen(1)).EvaluateAll(context.Background(), qs, answers)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"q1", "q2", "q3"}, []string{recs[0].QuestionID, recs[1].QuestionID, recs[2].QuestionID})
	assert.Equal(t, exam.FeedbackAvailable, recs[1].Status)
	assert.Equal(t, exam.FeedbackUnattempted, recs[2].Status)
}

func TestEvaluateAllServiceDown(t *testing.T) {
	gen := llm.GenerateFunc(func(ctx context.Context, req llm.JSONRequest) ([]byte, error) {
		return nil, errors.New("connection refused")
	})
	qs := []exam.QuestionSpec{question, {ID: "q2", Type: exam.ShortAnswer, Text: "x", Answer: "y", MaxMarks: 2}}
	answers := map[string]exam.AnswerRecord{"q1": answered}

	recs, err := newGenerator(t, gen).EvaluateAll(context.Background(), qs, answers)
	assert.ErrorIs(t, err, exam.ErrGenerationUnavailable)
	require.Len(t, recs, 2)
	assert.Equal(t, exam.FeedbackUnavailable, recs[0].Status)
}

func TestEvaluateAllNothingAnswered(t *testing.T) {
	gen := llm.GenerateFunc(func(ctx context.Context, req llm.JSONRequest) ([]byte, error) {
		return nil, errors.New("unused")
	})
	recs, err := newGenerator(t, gen).EvaluateAll(context.Background(), []exam.QuestionSpec{question}, nil)
	require.NoError(t, err)
	assert.Equal(t, exam.FeedbackUnattempted, recs[0].Status)
}

func TestUnknownErrorTypeIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	loose := `{"type":"object","properties":{"explanation":{"type":"string"},"awarded_score":{"type":"number"},"error_type":{"type":"string"},"next_step":{"type":"string"}},"required":["explanation","awarded_score","error_type","next_step"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feedback.schema.json"), []byte(loose), 0o644))

	gen := llm.GenerateFunc(func(ctx context.Context, req llm.JSONRequest) ([]byte, error) {
		return []byte(`{"explanation":"Fine","awarded_score":1,"error_type":"spelling","next_step":""}`), nil
	})
	g, err := New(gen, prompt.New(dir), DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	rec := g.Evaluate(context.Background(), question, answered)
	assert.Equal(t, exam.FeedbackUnavailable, rec.Status)
	assert.Contains(t, rec.Reason, "spelling")
	assert.Zero(t, rec.AwardedScore)
}
