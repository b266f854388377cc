package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"evater/api/internal/distribute"
	"evater/api/internal/exam"
	"evater/api/internal/llm"
	"evater/api/internal/store"
	"evater/api/internal/testgen"
)

// TestStore keeps generated tests so answer sheets can refer to them by id.
type TestStore interface {
	Save(ctx context.Context, t exam.Test) error
	Find(ctx context.Context, id string) (exam.Test, error)
}

type GenerateRequest struct {
	Grade        string
	Subject      string
	Topic        string
	Difficulty   string
	Length       string
	Instructions []string
}

// Service is what the HTTP handlers, the bot and the CLI talk to.
type Service struct {
	dist  *distribute.Distributor
	gen   *testgen.Generator
	eval  *Evaluator
	tests TestStore
	log   *zap.Logger
}

func NewService(dist *distribute.Distributor, gen *testgen.Generator, eval *Evaluator, tests TestStore, log *zap.Logger) *Service {
	if tests == nil {
		tests = NewMemoryTests()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{dist: dist, gen: gen, eval: eval, tests: tests, log: log}
}

// Plan parses the request enums and computes the distribution.
func (s *Service) Plan(length, difficulty string, instructions []string) (distribute.Result, exam.Length, exam.Difficulty, error) {
	l, err := exam.ParseLength(length)
	if err != nil {
		return distribute.Result{}, "", "", err
	}
	d, err := exam.ParseDifficulty(difficulty)
	if err != nil {
		return distribute.Result{}, "", "", err
	}
	res, err := s.dist.Plan(distribute.Request{Length: l, Difficulty: d, Instructions: instructions})
	if err != nil {
		return distribute.Result{}, "", "", err
	}
	return res, l, d, nil
}

func (s *Service) GenerateTest(ctx context.Context, req GenerateRequest) (exam.Test, error) {
	if strings.TrimSpace(req.Grade) == "" || strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Topic) == "" {
		return exam.Test{}, fmt.Errorf("%w: grade, subject and topic are required", exam.ErrInvalidRequest)
	}
	plan, l, d, err := s.Plan(req.Length, req.Difficulty, req.Instructions)
	if err != nil {
		return exam.Test{}, err
	}

	res, err := s.gen.Generate(ctx, testgen.Request{
		Grade:      req.Grade,
		Subject:    req.Subject,
		Topic:      req.Topic,
		Difficulty: d,
		Plan:       plan.Plan,
		Guidance:   plan.Guidance,
	})
	if err != nil {
		return exam.Test{}, err
	}

	t := exam.Test{
		ID:                  uuid.NewString(),
		Grade:               req.Grade,
		Subject:             req.Subject,
		Topic:               req.Topic,
		Difficulty:          d,
		Length:              l,
		Instructions:        req.Instructions,
		Plan:                plan.Plan,
		Questions:           res.Questions,
		UnsupportedBySource: res.UnsupportedBySource,
		Shortfall:           res.Shortfall,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.tests.Save(ctx, t); err != nil {
		s.log.Warn("save test", zap.String("test_id", t.ID), zap.Error(err))
	}
	return t, nil
}

func (s *Service) FindTest(ctx context.Context, id string) (exam.Test, error) {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return exam.Test{}, fmt.Errorf("%w: %s", exam.ErrTestNotFound, id)
	}
	t, err := s.tests.Find(ctx, strings.TrimSpace(id))
	if errors.Is(err, store.ErrNotFound) {
		return exam.Test{}, fmt.Errorf("%w: %s", exam.ErrTestNotFound, id)
	}
	return t, err
}

func (s *Service) Evaluate(ctx context.Context, questions []exam.QuestionSpec, images []llm.Image) (exam.Evaluation, error) {
	return s.eval.Evaluate(ctx, questions, images)
}

func (s *Service) EvaluateTest(ctx context.Context, testID string, images []llm.Image) (exam.Evaluation, error) {
	t, err := s.FindTest(ctx, testID)
	if err != nil {
		return exam.Evaluation{}, err
	}
	return s.eval.Evaluate(ctx, t.Questions, images)
}

// MemoryTests is the TestStore used when no database is configured. It is
// bounded only by PurgeOlderThan, which the server calls periodically.
type MemoryTests struct {
	m sync.Map
}

func NewMemoryTests() *MemoryTests { return &MemoryTests{} }

func (m *MemoryTests) Save(_ context.Context, t exam.Test) error {
	m.m.Store(t.ID, t)
	return nil
}

func (m *MemoryTests) Find(_ context.Context, id string) (exam.Test, error) {
	v, ok := m.m.Load(id)
	if !ok {
		return exam.Test{}, exam.ErrTestNotFound
	}
	return v.(exam.Test), nil
}

// PurgeOlderThan drops tests created more than olderThan ago.
func (m *MemoryTests) PurgeOlderThan(_ context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	var n int64
	m.m.Range(func(k, v any) bool {
		if v.(exam.Test).CreatedAt.Before(cutoff) && m.m.CompareAndDelete(k, v) {
			n++
		}
		return true
	})
	return n, nil
}
