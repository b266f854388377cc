package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"evater/api/internal/cache"
	"evater/api/internal/exam"
	"evater/api/internal/feedback"
	"evater/api/internal/llm"
	"evater/api/internal/merge"
	"evater/api/internal/segment"
)

// Evaluator runs answer sheets through OCR, segmentation, feedback and the
// merge. It keeps no state between calls.
type Evaluator struct {
	ocr            llm.Recognizer
	ocrName        string
	cache          cache.OCRCache
	feedback       *feedback.Generator
	ocrConcurrency int
	log            *zap.Logger
}

func NewEvaluator(ocr llm.Recognizer, ocrName string, c cache.OCRCache, fb *feedback.Generator, ocrConcurrency int, log *zap.Logger) *Evaluator {
	if c == nil {
		c = cache.Nop{}
	}
	if ocrConcurrency <= 0 {
		ocrConcurrency = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{
		ocr:            ocr,
		ocrName:        ocrName,
		cache:          c,
		feedback:       fb,
		ocrConcurrency: ocrConcurrency,
		log:            log,
	}
}

// Evaluate returns one merged entry per question. An expired context fails
// the whole evaluation; a partial result is never returned.
func (e *Evaluator) Evaluate(ctx context.Context, questions []exam.QuestionSpec, images []llm.Image) (exam.Evaluation, error) {
	if len(questions) == 0 || len(images) == 0 {
		return exam.Evaluation{}, fmt.Errorf("%w: questions and images are required", exam.ErrInvalidRequest)
	}
	if err := exam.QuestionSet(questions).Check(); err != nil {
		return exam.Evaluation{}, err
	}

	pages, err := e.recognize(ctx, images)
	if err != nil {
		return exam.Evaluation{}, err
	}

	seg := segment.Segment(pages, questions)
	for _, a := range seg.Anomalies {
		e.log.Info("segmentation anomaly",
			zap.String("kind", string(a.Kind)),
			zap.String("question_id", a.QuestionID),
			zap.Int("page", a.PageIndex),
			zap.String("detail", a.Detail),
		)
	}

	fb, err := e.feedback.EvaluateAll(ctx, questions, seg.ByID())
	if err != nil {
		return exam.Evaluation{}, err
	}
	if err := ctx.Err(); err != nil {
		return exam.Evaluation{}, err
	}

	merged := merge.Merge(questions, seg.Answers, fb)
	return exam.Evaluation{
		Merged:    merged,
		Summary:   merge.Summarize(merged),
		Anomalies: seg.Anomalies,
	}, nil
}

// recognize reads every page concurrently and keeps page order. A page that
// cannot be read fails the request: treating it as blank would turn an
// outage into "no answer found" for its questions.
func (e *Evaluator) recognize(ctx context.Context, images []llm.Image) ([]string, error) {
	pages := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.ocrConcurrency)
	for i, img := range images {
		g.Go(func() error {
			text, err := e.readPage(gctx, img)
			if err != nil {
				return fmt.Errorf("%w: page %d: %v", exam.ErrOCRUnavailable, i, err)
			}
			pages[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return pages, nil
}

func (e *Evaluator) readPage(ctx context.Context, img llm.Image) (string, error) {
	if text, ok, err := e.cache.Get(ctx, e.ocrName, img.Data); err != nil {
		e.log.Warn("ocr cache get", zap.Error(err))
	} else if ok {
		return text, nil
	}

	text, err := llm.Retry(ctx, func(ctx context.Context, attempt int) (string, error) {
		return e.ocr.Recognize(ctx, img)
	})
	if err != nil {
		return "", err
	}
	if err := e.cache.Set(ctx, e.ocrName, img.Data, text); err != nil {
		e.log.Warn("ocr cache set", zap.Error(err))
	}
	return text, nil
}
