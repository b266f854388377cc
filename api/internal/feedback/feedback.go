package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"evater/api/internal/exam"
	"evater/api/internal/llm"
	"evater/api/internal/prompt"
	"evater/api/internal/util"
	"evater/api/internal/validate"
)

const noAnswerExplanation = "no answer submitted"

type Config struct {
	// Tolerance is how far above the maximum a model score may be before it
	// is rejected instead of clamped.
	Tolerance   float64
	Concurrency int
}

func DefaultConfig() Config {
	return Config{Tolerance: 0.5, Concurrency: 4}
}

type output struct {
	Explanation  string  `json:"explanation"`
	AwardedScore float64 `json:"awarded_score"`
	ErrorType    string  `json:"error_type"`
	NextStep     string  `json:"next_step"`
}

type Generator struct {
	gen       llm.TextGenerator
	system    string
	schema    map[string]any
	validator *validate.Schema
	cfg       Config
	log       *zap.Logger
}

func New(gen llm.TextGenerator, prompts *prompt.Loader, cfg Config, log *zap.Logger) (*Generator, error) {
	system, err := prompts.System(prompt.Feedback)
	if err != nil {
		return nil, err
	}
	raw, err := prompts.SchemaBytes(prompt.Feedback)
	if err != nil {
		return nil, err
	}
	v, err := validate.Compile(prompt.Feedback, raw)
	if err != nil {
		return nil, err
	}
	schema, err := prompts.Schema(prompt.Feedback)
	if err != nil {
		return nil, err
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Tolerance < 0 {
		cfg.Tolerance = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{gen: gen, system: system, schema: schema, validator: v, cfg: cfg, log: log}, nil
}

// Evaluate produces the feedback record for one answer. It never fails: a
// service or validation failure yields an unavailable record.
func (g *Generator) Evaluate(ctx context.Context, q exam.QuestionSpec, a exam.AnswerRecord) exam.FeedbackRecord {
	rec, _ := g.evaluate(ctx, q, a)
	return rec
}

// EvaluateAll evaluates every question concurrently and returns the records
// in question order. It fails with exam.ErrGenerationUnavailable when every
// model call failed at the transport level.
func (g *Generator) EvaluateAll(ctx context.Context, questions []exam.QuestionSpec, answers map[string]exam.AnswerRecord) ([]exam.FeedbackRecord, error) {
	out := make([]exam.FeedbackRecord, len(questions))
	callErrs := make([]error, len(questions))
	attempted := make([]bool, len(questions))

	var eg errgroup.Group
	eg.SetLimit(g.cfg.Concurrency)
	for i, q := range questions {
		a, ok := answers[q.ID]
		if !ok {
			a = exam.MissingAnswer(q.ID, exam.ReasonNoMarker)
		}
		attempted[i] = a.Status == exam.AnswerFound
		eg.Go(func() error {
			out[i], callErrs[i] = g.evaluate(ctx, q, a)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	calls, failed := 0, 0
	var last error
	for i := range questions {
		if !attempted[i] {
			continue
		}
		calls++
		if callErrs[i] != nil {
			failed++
			last = callErrs[i]
		}
	}
	if calls > 0 && failed == calls {
		return out, fmt.Errorf("%w: feedback: %v", exam.ErrGenerationUnavailable, last)
	}
	return out, nil
}

// evaluate returns the record and, separately, the transport error of the
// model call if there was one.
func (g *Generator) evaluate(ctx context.Context, q exam.QuestionSpec, a exam.AnswerRecord) (exam.FeedbackRecord, error) {
	if a.Status != exam.AnswerFound || strings.TrimSpace(a.Text) == "" {
		return exam.FeedbackRecord{
			QuestionID:    q.ID,
			Explanation:   noAnswerExplanation,
			AwardedScore:  0,
			MaxScore:      q.MaxMarks,
			ErrorCategory: exam.Unattempted,
			Status:        exam.FeedbackUnattempted,
		}, nil
	}

	out, err := llm.Retry(ctx, func(ctx context.Context, attempt int) (output, error) {
		raw, err := g.gen.GenerateJSON(ctx, g.request(q, a))
		if err != nil {
			return output{}, err
		}
		r := validate.Decode[output](g.validator, raw)
		if !r.Valid {
			g.log.Debug("invalid feedback", zap.String("question_id", q.ID), zap.Int("attempt", attempt), zap.String("reason", r.Reason))
			return output{}, fmt.Errorf("%w: %s", exam.ErrSchemaValidation, r.Reason)
		}
		return r.Value, nil
	})
	if err != nil {
		g.log.Warn("feedback unavailable", zap.String("question_id", q.ID), zap.Error(err))
		if errors.Is(err, exam.ErrSchemaValidation) {
			return exam.UnavailableFeedback(q, util.Truncate(err.Error(), 300)), nil
		}
		return exam.UnavailableFeedback(q, "feedback service: "+util.Truncate(err.Error(), 300)), err
	}
	return g.record(q, out), nil
}

// record applies the score policy: negative scores and scores above the
// maximum by more than the tolerance are rejected, smaller overruns clamped.
// An error_type outside the known categories is rejected too.
func (g *Generator) record(q exam.QuestionSpec, out output) exam.FeedbackRecord {
	switch {
	case out.AwardedScore < 0:
		return exam.UnavailableFeedback(q, fmt.Sprintf("negative score %g", out.AwardedScore))
	case out.AwardedScore > q.MaxMarks+g.cfg.Tolerance:
		return exam.UnavailableFeedback(q, fmt.Sprintf("score %g exceeds maximum %g", out.AwardedScore, q.MaxMarks))
	}
	cat, ok := exam.ParseErrorCategory(out.ErrorType)
	if !ok {
		return exam.UnavailableFeedback(q, fmt.Sprintf("unknown error_type %q", out.ErrorType))
	}
	score := out.AwardedScore
	if score > q.MaxMarks {
		score = q.MaxMarks
	}
	return exam.FeedbackRecord{
		QuestionID:    q.ID,
		Explanation:   strings.TrimSpace(out.Explanation),
		AwardedScore:  score,
		MaxScore:      q.MaxMarks,
		ErrorCategory: cat,
		NextStep:      strings.TrimSpace(out.NextStep),
		Status:        exam.FeedbackAvailable,
	}
}

func (g *Generator) request(q exam.QuestionSpec, a exam.AnswerRecord) llm.JSONRequest {
	input := map[string]any{
		"question_id":      q.ID,
		"question":         q.Text,
		"question_type":    string(q.Type),
		"reference_answer": q.ReferenceAnswer(),
		"maximum_marks":    q.MaxMarks,
		"student_answer":   a.Text,
	}
	if len(q.Options) > 0 {
		input["options"] = q.Options
	}
	return llm.JSONRequest{
		Name:   prompt.Feedback,
		System: g.system,
		Input:  input,
		Schema: util.CloneSchema(g.schema),
	}
}
