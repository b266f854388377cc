package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"evater/api/internal/distribute"
	"evater/api/internal/exam"
	"evater/api/internal/feedback"
	"evater/api/internal/llm"
	"evater/api/internal/prompt"
	"evater/api/internal/testgen"
)

func TestMain(m *testing.M) {
	llm.RetryPause = 0
	goleak.VerifyTestMain(m)
}

var questions = []exam.QuestionSpec{
	{ID: "q1", Number: 1, Type: exam.MCQ, Text: "Which gas do plants absorb?", Options: []exam.Option{{Text: "CO2", IsCorrect: true}, {Text: "O2"}}, MaxMarks: 1},
	{ID: "q2", Number: 2, Type: exam.ShortAnswer, Text: "Define photosynthesis.", Answer: "Making food from light.", MaxMarks: 2},
	{ID: "q3", Number: 3, Type: exam.LongAnswer, Text: "Explain transpiration.", Answer: "Water loss through leaves.", MaxMarks: 3},
}

var sheets = map[string]string{
	"page-0": "1. CO2\n",
	"page-1": "",
	"page-2": "2. Plants make food using sunlight\n",
}

func pages(names ...string) []llm.Image {
	out := make([]llm.Image, 0, len(names))
	for _, n := range names {
		out = append(out, llm.Image{Data: []byte(n), MIME: "image/jpeg"})
	}
	return out
}

// stubModel plays every model role: question generation, vision OCR and
// grading (one mark per answer).
func stubModel() llm.GenerateFunc {
	return func(ctx context.Context, req llm.JSONRequest) ([]byte, error) {
		switch req.Name {
		case prompt.OCR:
			text, ok := sheets[string(req.Images[0].Data)]
			if !ok {
				return nil, errors.New("unreadable")
			}
			return json.Marshal(map[string]string{"raw_answer_text": text})
		case prompt.Feedback:
			return []byte(`{"explanation":"Correct idea","awarded_score":1,"error_type":"none","next_step":"Add detail"}`), nil
		case prompt.Questions:
			in := req.Input.(map[string]any)
			t := exam.QuestionType(in["question_type"].(string))
			n := in["count"].(int)
			items := make([]map[string]any, 0, n)
			for i := 0; i < n; i++ {
				q := map[string]any{
					"question_text":            fmt.Sprintf("%s question %d", t, i+1),
					"question_type":            string(t),
					"difficulty":               "Easy",
					"options":                  []any{},
					"correct_answer":           "answer",
					"maximum_marks":            t.DefaultMarks(),
					"contains_math_expression": false,
				}
				if t == exam.MCQ {
					q["options"] = []any{
						map[string]any{"text": "A", "is_correct": true},
						map[string]any{"text": "B", "is_correct": false},
					}
				}
				items = append(items, q)
			}
			return json.Marshal(map[string]any{"questions": items})
		}
		return nil, fmt.Errorf("unexpected prompt %q", req.Name)
	}
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *mapCache) Get(_ context.Context, engine string, image []byte) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.m[engine+string(image)]
	return s, ok, nil
}

func (c *mapCache) Set(_ context.Context, engine string, image []byte, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[engine+string(image)] = text
	return nil
}

func newEvaluator(t *testing.T, ocr llm.Recognizer, gen llm.TextGenerator) *Evaluator {
	t.Helper()
	fb, err := feedback.New(gen, prompt.New(""), feedback.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	return NewEvaluator(ocr, "stub", nil, fb, 2, zap.NewNop())
}

func visionOCR(t *testing.T, gen llm.TextGenerator) llm.Recognizer {
	t.Helper()
	v, err := llm.NewVisionOCR(gen, prompt.New(""))
	require.NoError(t, err)
	return v
}

func TestEvaluateEndToEnd(t *testing.T) {
	model := stubModel()
	e := newEvaluator(t, visionOCR(t, model), model)

	ev, err := e.Evaluate(context.Background(), questions, pages("page-0", "page-1", "page-2"))
	require.NoError(t, err)

	require.Len(t, ev.Merged, len(questions))
	var ids []string
	for _, m := range ev.Merged {
		ids = append(ids, m.Question.ID)
	}
	if diff := cmp.Diff([]string{"q1", "q2", "q3"}, ids); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}

	assert.Equal(t, "CO2", ev.Merged[0].Answer.Text)
	assert.Equal(t, 0, ev.Merged[0].Answer.PageIndex)
	assert.Equal(t, 2, ev.Merged[1].Answer.PageIndex)
	assert.Equal(t, exam.AnswerNotFound, ev.Merged[2].Answer.Status)
	assert.Equal(t, exam.FeedbackUnattempted, ev.Merged[2].Feedback.Status)

	assert.Equal(t, 2.0, ev.Summary.AwardedTotal)
	assert.Equal(t, 6.0, ev.Summary.MaximumTotal)

	var empty bool
	for _, a := range ev.Anomalies {
		if a.Kind == exam.AnomalyEmptyPage && a.PageIndex == 1 {
			empty = true
		}
	}
	assert.True(t, empty, "empty page should be reported: %+v", ev.Anomalies)
}

func TestEvaluateOCRFailureFailsRequest(t *testing.T) {
	model := stubModel()
	e := newEvaluator(t, visionOCR(t, model), model)

	_, err := e.Evaluate(context.Background(), questions, pages("page-0", "torn"))
	assert.ErrorIs(t, err, exam.ErrOCRUnavailable)
}

func TestEvaluateTimeout(t *testing.T) {
	blocking := llm.RecognizeFunc(func(ctx context.Context, img llm.Image) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	e := newEvaluator(t, blocking, stubModel())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Evaluate(ctx, questions, pages("page-0", "page-2"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvaluateUsesOCRCache(t *testing.T) {
	var calls atomic.Int32
	ocr := llm.RecognizeFunc(func(ctx context.Context, img llm.Image) (string, error) {
		calls.Add(1)
		return sheets[string(img.Data)], nil
	})
	fb, err := feedback.New(stubModel(), prompt.New(""), feedback.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	e := NewEvaluator(ocr, "stub", &mapCache{m: map[string]string{}}, fb, 2, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := e.Evaluate(context.Background(), questions, pages("page-0", "page-2"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestEvaluateRequiresInput(t *testing.T) {
	e := newEvaluator(t, llm.RecognizeFunc(func(context.Context, llm.Image) (string, error) { return "", nil }), stubModel())
	_, err := e.Evaluate(context.Background(), nil, pages("page-0"))
	assert.ErrorIs(t, err, exam.ErrInvalidRequest)
	_, err = e.Evaluate(context.Background(), questions, nil)
	assert.ErrorIs(t, err, exam.ErrInvalidRequest)

	dup := []exam.QuestionSpec{questions[0], questions[1]}
	dup[1].ID = dup[0].ID
	_, err = e.Evaluate(context.Background(), dup, pages("page-0"))
	assert.ErrorIs(t, err, exam.ErrInvalidRequest)
}

func newService(t *testing.T) *Service {
	t.Helper()
	model := stubModel()
	gen, err := testgen.New(model, nil, prompt.New(""), 4, zap.NewNop())
	require.NoError(t, err)
	return NewService(distribute.New(distribute.DefaultConfig()), gen, newEvaluator(t, visionOCR(t, model), model), nil, zap.NewNop())
}

func TestServiceGenerateAndEvaluateStoredTest(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	test, err := s.GenerateTest(ctx, GenerateRequest{
		Grade: "7", Subject: "Science", Topic: "Plants",
		Difficulty: "easy", Length: "short", Instructions: []string{"mcq only"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, test.ID)
	assert.True(t, test.UnsupportedBySource)
	assert.Equal(t, exam.DistributionPlan{exam.MCQ: 5, exam.TrueFalse: 0, exam.ShortAnswer: 0, exam.LongAnswer: 0}, test.Plan)
	require.Len(t, test.Questions, 5)
	for _, q := range test.Questions {
		assert.Equal(t, exam.MCQ, q.Type)
	}

	got, err := s.FindTest(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, test.ID, got.ID)

	ev, err := s.EvaluateTest(ctx, test.ID, pages("page-0", "page-2"))
	require.NoError(t, err)
	assert.Len(t, ev.Merged, 5)
}

func TestServiceErrors(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.GenerateTest(ctx, GenerateRequest{Subject: "Science", Topic: "Plants", Difficulty: "easy", Length: "short"})
	assert.ErrorIs(t, err, exam.ErrInvalidRequest)

	_, err = s.GenerateTest(ctx, GenerateRequest{Grade: "7", Subject: "Science", Topic: "Plants", Difficulty: "extreme", Length: "short"})
	assert.ErrorIs(t, err, exam.ErrInvalidDistributionRequest)

	_, err = s.FindTest(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, exam.ErrTestNotFound)

	_, err = s.FindTest(ctx, "5f0c3c52-8a8e-4c3e-9a59-1f0a5d0b7a11")
	assert.ErrorIs(t, err, exam.ErrTestNotFound)
}

func TestMemoryTestsPurgeOlderThan(t *testing.T) {
	m := NewMemoryTests()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, m.Save(ctx, exam.Test{ID: "old", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, m.Save(ctx, exam.Test{ID: "new", CreatedAt: now}))

	n, err := m.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = m.Find(ctx, "old")
	assert.ErrorIs(t, err, exam.ErrTestNotFound)
	_, err = m.Find(ctx, "new")
	assert.NoError(t, err)

	_, err = m.PurgeOlderThan(ctx, 0)
	assert.Error(t, err)
}
