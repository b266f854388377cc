package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"evater/api/internal/distribute"
)

type Config struct {
	Port     string
	LogLevel string
	LogJSON  bool

	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	YCOAuthToken  string
	YCFolderID    string

	// LLMName picks the text engine (gemini|gpt), OCREngine the vision one
	// (gemini|gpt|yandex).
	LLMName   string
	OCREngine string
	PromptDir string

	RedisURL    string
	OCRCacheTTL time.Duration

	TelegramBotToken string
	WebhookURL       string

	FeedbackConcurrency   int
	OCRConcurrency        int
	GenerationConcurrency int
	LLMRateLimitRPS       float64
	LLMRateLimitBurst     int
	RequestTimeout        time.Duration
	ScoreTolerance        float64
	TestRetention         time.Duration

	Distribution distribute.Config
}

// fileConfig is the optional YAML overlay named by EVATER_CONFIG.
type fileConfig struct {
	Distribution   distribute.Config `yaml:"distribution"`
	ScoreTolerance *float64          `yaml:"score_tolerance"`
}

// Load reads .env (if present), the environment and the optional YAML
// overlay. Provider keys are checked by Validate, not here, so that
// commands that need no provider still start.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		Port:     getEnv("PORT", "8000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getBool("LOG_JSON", true, &errs),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		YCOAuthToken:  os.Getenv("YC_OAUTH_TOKEN"),
		YCFolderID:    os.Getenv("YC_FOLDER_ID"),

		LLMName:   strings.ToLower(getEnv("LLM_NAME", "gemini")),
		OCREngine: strings.ToLower(getEnv("OCR_ENGINE", "gemini")),
		PromptDir: os.Getenv("PROMPT_DIR"),

		RedisURL:    os.Getenv("REDIS_URL"),
		OCRCacheTTL: getDuration("OCR_CACHE_TTL", 24*time.Hour, &errs),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		WebhookURL:       os.Getenv("WEBHOOK_URL"),

		FeedbackConcurrency:   getInt("FEEDBACK_CONCURRENCY", 4, &errs),
		OCRConcurrency:        getInt("OCR_CONCURRENCY", 4, &errs),
		GenerationConcurrency: getInt("GENERATION_CONCURRENCY", 4, &errs),
		LLMRateLimitRPS:       getFloat("LLM_RATE_LIMIT_RPS", 0, &errs),
		LLMRateLimitBurst:     getInt("LLM_RATE_LIMIT_BURST", 1, &errs),
		RequestTimeout:        getDuration("REQUEST_TIMEOUT", 120*time.Second, &errs),
		ScoreTolerance:        getFloat("SCORE_TOLERANCE", 0.5, &errs),
		TestRetention:         getDuration("TEST_RETENTION", 30*24*time.Hour, &errs),

		Distribution: distribute.DefaultConfig(),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if path := strings.TrimSpace(os.Getenv("EVATER_CONFIG")); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Distribution.Validate(); err != nil {
		return nil, fmt.Errorf("distribution config: %w", err)
	}
	return cfg, nil
}

func (c *Config) overlay(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	c.Distribution = c.Distribution.Merge(fc.Distribution)
	if fc.ScoreTolerance != nil {
		c.ScoreTolerance = *fc.ScoreTolerance
	}
	return nil
}

// Validate checks that the selected engines have their credentials.
func (c *Config) Validate() error {
	var errs []error
	need := func(engine string) {
		switch engine {
		case "gemini":
			if c.GeminiAPIKey == "" {
				errs = append(errs, errors.New("missing required env GEMINI_API_KEY"))
			}
		case "gpt", "openai":
			if c.OpenAIAPIKey == "" {
				errs = append(errs, errors.New("missing required env OPENAI_API_KEY"))
			}
		case "yandex":
			if c.YCOAuthToken == "" || c.YCFolderID == "" {
				errs = append(errs, errors.New("missing required env YC_OAUTH_TOKEN / YC_FOLDER_ID"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown engine %q", engine))
		}
	}
	need(c.LLMName)
	if c.OCREngine != c.LLMName {
		need(c.OCREngine)
	}
	if c.LLMName == "yandex" {
		errs = append(errs, errors.New("LLM_NAME: yandex is OCR only"))
	}
	if c.FeedbackConcurrency <= 0 || c.OCRConcurrency <= 0 || c.GenerationConcurrency <= 0 {
		errs = append(errs, errors.New("concurrency limits must be > 0"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be > 0"))
	}
	return errors.Join(errs...)
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func getFloat(k string, def float64, errs *[]error) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return f
}

func getBool(k string, def bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return b
}

// getDuration accepts Go durations ("90s") or plain seconds ("90").
func getDuration(k string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}
