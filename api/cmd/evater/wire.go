package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"evater/api/internal/cache"
	"evater/api/internal/config"
	"evater/api/internal/distribute"
	"evater/api/internal/feedback"
	"evater/api/internal/fetch"
	"evater/api/internal/llm"
	"evater/api/internal/llm/gemini"
	"evater/api/internal/llm/gpt"
	"evater/api/internal/llm/yandex"
	"evater/api/internal/pipeline"
	"evater/api/internal/prompt"
	"evater/api/internal/store"
	"evater/api/internal/testgen"
)

// testPurger is implemented by both test stores.
type testPurger interface {
	PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error)
}

// app holds everything serve and bot share.
type app struct {
	svc    *pipeline.Service
	images *fetch.Fetcher
	db     *sql.DB
	rdb    *redis.Client
	tests  testPurger
}

func buildEngines(cfg *config.Config, prompts *prompt.Loader) (*llm.Engines, error) {
	lim := llm.NewLimiter(cfg.LLMRateLimitRPS, cfg.LLMRateLimitBurst)
	engines := &llm.Engines{}

	if cfg.GeminiAPIKey != "" {
		engines.Gemini = llm.Throttle(gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel), lim)
		v, err := llm.NewVisionOCR(engines.Gemini, prompts)
		if err != nil {
			return nil, err
		}
		engines.GeminiOCR = v
	}
	if cfg.OpenAIAPIKey != "" {
		e := gpt.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		e.BaseURL = cfg.OpenAIBaseURL
		engines.GPT = llm.Throttle(e, lim)
		v, err := llm.NewVisionOCR(engines.GPT, prompts)
		if err != nil {
			return nil, err
		}
		engines.GPTOCR = v
	}
	if cfg.YCOAuthToken != "" && cfg.YCFolderID != "" {
		engines.YandexOCR = llm.ThrottleOCR(yandex.New(cfg.YCOAuthToken, cfg.YCFolderID), lim)
	}
	return engines, nil
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	prompts := prompt.New(cfg.PromptDir)

	engines, err := buildEngines(cfg, prompts)
	if err != nil {
		return nil, err
	}
	text, err := engines.GetText(cfg.LLMName)
	if err != nil {
		return nil, err
	}
	ocr, err := engines.GetOCR(cfg.OCREngine)
	if err != nil {
		return nil, err
	}

	a := &app{}
	var (
		content testgen.ContentLookup
		tests   pipeline.TestStore
	)
	if dsn := store.ResolveDSN(); dsn != "" {
		db, err := store.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("db connected", zap.String("dsn", store.SafeDSNSummary(dsn)))
		repo := store.NewTestRepo(db)
		a.db = db
		a.tests = repo
		content = store.NewChapterRepo(db)
		tests = repo
	} else {
		log.Warn("no database configured: tests are kept in memory and no chapter content is available")
		mem := pipeline.NewMemoryTests()
		a.tests = mem
		tests = mem
	}

	var ocrCache cache.OCRCache = cache.Nop{}
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		ocrCache = cache.NewOCRCache(rdb, cfg.OCRCacheTTL)
	}

	gen, err := testgen.New(text, content, prompts, cfg.GenerationConcurrency, log.Named("testgen"))
	if err != nil {
		a.Close()
		return nil, err
	}
	fb, err := feedback.New(text, prompts, feedback.Config{
		Tolerance:   cfg.ScoreTolerance,
		Concurrency: cfg.FeedbackConcurrency,
	}, log.Named("feedback"))
	if err != nil {
		a.Close()
		return nil, err
	}

	eval := pipeline.NewEvaluator(ocr, cfg.OCREngine, ocrCache, fb, cfg.OCRConcurrency, log.Named("evaluate"))
	a.svc = pipeline.NewService(distribute.New(cfg.Distribution), gen, eval, tests, log)
	a.images = fetch.New(60 * time.Second)
	a.images.Concurrency = cfg.OCRConcurrency
	return a, nil
}

// purgeLoop drops stored tests older than the retention period.
func (a *app) purgeLoop(ctx context.Context, retention time.Duration, log *zap.Logger) {
	if a.tests == nil || retention <= 0 {
		return
	}
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		n, err := a.tests.PurgeOlderThan(ctx, retention)
		if err != nil {
			log.Warn("purge tests", zap.Error(err))
		} else if n > 0 {
			log.Info("purged tests", zap.Int64("count", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
