package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"evater/api/internal/exam"
	"evater/api/internal/fetch"
	"evater/api/internal/llm"
	"evater/api/internal/pipeline"
)

const maxBodyBytes = 32 << 20

type Service interface {
	GenerateTest(ctx context.Context, req pipeline.GenerateRequest) (exam.Test, error)
	Evaluate(ctx context.Context, questions []exam.QuestionSpec, images []llm.Image) (exam.Evaluation, error)
	EvaluateTest(ctx context.Context, testID string, images []llm.Image) (exam.Evaluation, error)
	FindTest(ctx context.Context, id string) (exam.Test, error)
}

type ImageFetcher interface {
	Fetch(ctx context.Context, refs []string) ([]llm.Image, error)
}

type Handle struct {
	svc     Service
	images  ImageFetcher
	timeout time.Duration
	ping    func(ctx context.Context) error
	log     *zap.Logger
}

func New(svc Service, images ImageFetcher, timeout time.Duration, log *zap.Logger) *Handle {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handle{svc: svc, images: images, timeout: timeout, log: log}
}

// WithPing makes /healthz check a dependency, usually the database.
func (h *Handle) WithPing(ping func(ctx context.Context) error) *Handle {
	h.ping = ping
	return h
}

func (h *Handle) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Evater API"})
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requestContext applies the X-Request-Timeout header (or the timeoutSec
// query parameter), both in seconds, over the configured default.
func (h *Handle) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	deadline := h.timeout
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return context.WithTimeout(r.Context(), deadline)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return false
	}
	return true
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, exam.ErrInvalidRequest),
		errors.Is(err, exam.ErrInvalidDistributionRequest),
		errors.Is(err, fetch.ErrBadImage):
		return http.StatusBadRequest
	case errors.Is(err, exam.ErrTestNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handle) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	}
	writeError(w, code, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
