package testgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"evater/api/internal/exam"
	"evater/api/internal/llm"
	"evater/api/internal/prompt"
	"evater/api/internal/util"
	"evater/api/internal/validate"
)

const noReferenceContent = "No reference content is available for this topic. Use general curriculum knowledge for the grade."

// ContentLookup returns the chapter summary for a topic. Any error, or an
// empty summary, means there is no reference content.
type ContentLookup interface {
	Summary(ctx context.Context, grade, subject, topic string) (string, error)
}

type Request struct {
	Grade      string
	Subject    string
	Topic      string
	Difficulty exam.Difficulty
	Plan       exam.DistributionPlan
	Guidance   []string
}

type Result struct {
	Questions           []exam.QuestionSpec `json:"questions"`
	UnsupportedBySource bool                `json:"unsupported_by_source"`
	// Shortfall counts the questions per type that could not be produced.
	Shortfall map[exam.QuestionType]int `json:"shortfall,omitempty"`
}

type Generator struct {
	gen         llm.TextGenerator
	content     ContentLookup
	system      string
	item        map[string]any
	validator   *validate.Schema
	concurrency int
	log         *zap.Logger
}

func New(gen llm.TextGenerator, content ContentLookup, prompts *prompt.Loader, concurrency int, log *zap.Logger) (*Generator, error) {
	system, err := prompts.System(prompt.Questions)
	if err != nil {
		return nil, err
	}
	raw, err := prompts.SchemaBytes(prompt.Question)
	if err != nil {
		return nil, err
	}
	v, err := validate.Compile(prompt.Question, raw)
	if err != nil {
		return nil, err
	}
	item, err := prompts.Schema(prompt.Question)
	if err != nil {
		return nil, err
	}
	delete(item, "$schema")
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		gen:         gen,
		content:     content,
		system:      system,
		item:        item,
		validator:   v,
		concurrency: concurrency,
		log:         log,
	}, nil
}

// Generate requests every type of the plan, validates the items and numbers
// the survivors q1..qN in canonical type order. It returns fewer questions
// than planned rather than inventing any.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	ref, supported := g.reference(ctx, req)

	type outcome struct {
		questions []exam.QuestionSpec
		err       error
	}
	outcomes := make([]outcome, len(exam.QuestionTypes))

	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	requested := 0
	for i, t := range exam.QuestionTypes {
		count := req.Plan[t]
		if count <= 0 {
			continue
		}
		requested++
		eg.Go(func() error {
			qs, err := g.generateType(ctx, req, ref, t, count)
			outcomes[i] = outcome{questions: qs, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{UnsupportedBySource: !supported, Questions: []exam.QuestionSpec{}}
	failed := 0
	for i, t := range exam.QuestionTypes {
		o := outcomes[i]
		if o.err != nil {
			failed++
			g.log.Warn("question generation failed", zap.String("type", string(t)), zap.Error(o.err))
		}
		if short := req.Plan[t] - len(o.questions); short > 0 {
			if res.Shortfall == nil {
				res.Shortfall = map[exam.QuestionType]int{}
			}
			res.Shortfall[t] = short
		}
		for _, q := range o.questions {
			n := len(res.Questions) + 1
			q.Number = n
			q.ID = "q" + strconv.Itoa(n)
			res.Questions = append(res.Questions, q)
		}
	}
	if requested > 0 && failed == requested {
		return Result{}, fmt.Errorf("%w: every question type failed", exam.ErrGenerationUnavailable)
	}
	return res, nil
}

func (g *Generator) reference(ctx context.Context, req Request) (string, bool) {
	if g.content == nil {
		return noReferenceContent, false
	}
	s, err := g.content.Summary(ctx, req.Grade, req.Subject, req.Topic)
	if err != nil || strings.TrimSpace(s) == "" {
		g.log.Info("no reference content",
			zap.String("grade", req.Grade), zap.String("subject", req.Subject), zap.String("topic", req.Topic), zap.Error(err))
		return noReferenceContent, false
	}
	return s, true
}

// generateType makes one call for count questions of type t and, on a
// shortfall or failure, one more call for the missing ones. The error is
// non-nil only when no call succeeded.
func (g *Generator) generateType(ctx context.Context, req Request, ref string, t exam.QuestionType, count int) ([]exam.QuestionSpec, error) {
	var (
		out     []exam.QuestionSpec
		seen    = map[string]bool{}
		lastErr error
		okCalls int
	)
	for attempt := 1; attempt <= 2 && len(out) < count; attempt++ {
		need := count - len(out)
		raw, err := g.gen.GenerateJSON(ctx, g.request(req, ref, t, need, out))
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		okCalls++
		items, err := splitEnvelope(raw)
		if err != nil {
			g.log.Debug("bad question envelope", zap.String("type", string(t)), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		for _, item := range items {
			if len(out) >= count {
				break
			}
			r := validate.Decode[exam.QuestionSpec](g.validator, item)
			if !r.Valid {
				g.log.Debug("question dropped", zap.String("type", string(t)), zap.String("reason", r.Reason))
				continue
			}
			q, reason := Normalize(r.Value, t, req.Difficulty)
			if reason != "" {
				g.log.Debug("question dropped", zap.String("type", string(t)), zap.String("reason", reason))
				continue
			}
			key := dedupeKey(q.Text)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, q)
		}
	}
	if okCalls == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func (g *Generator) request(req Request, ref string, t exam.QuestionType, count int, have []exam.QuestionSpec) llm.JSONRequest {
	input := map[string]any{
		"grade":             req.Grade,
		"subject":           req.Subject,
		"topic":             req.Topic,
		"difficulty":        string(req.Difficulty),
		"question_type":     string(t),
		"count":             count,
		"reference_content": ref,
		"instructions":      append([]string{}, req.Guidance...),
	}
	if len(have) > 0 {
		avoid := make([]string, 0, len(have))
		for _, q := range have {
			avoid = append(avoid, q.Text)
		}
		input["avoid_questions"] = avoid
	}
	return llm.JSONRequest{
		Name:   prompt.Questions,
		System: g.system,
		Input:  input,
		Schema: envelope(g.item, count),
	}
}

func envelope(item map[string]any, count int) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type":     "array",
				"items":    util.CloneSchema(item),
				"minItems": count,
				"maxItems": count,
			},
		},
		"required":             []any{"questions"},
		"additionalProperties": false,
	}
}

// splitEnvelope accepts {"questions": [...]} or a bare array and returns the
// raw items for per-item validation.
func splitEnvelope(raw []byte) ([]json.RawMessage, error) {
	clean := []byte(util.StripCodeFences(string(raw)))
	var env struct {
		Questions []json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal(clean, &env); err == nil && env.Questions != nil {
		return env.Questions, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(clean, &list); err != nil {
		return nil, fmt.Errorf("%w: questions envelope: %v", exam.ErrSchemaValidation, err)
	}
	return list, nil
}

func dedupeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
