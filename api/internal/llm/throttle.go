package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// NewLimiter returns nil when rps is not positive, which disables throttling.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

type throttledText struct {
	next TextGenerator
	lim  *rate.Limiter
}

// Throttle makes g wait for a limiter token before each call.
func Throttle(g TextGenerator, lim *rate.Limiter) TextGenerator {
	if g == nil || lim == nil {
		return g
	}
	return &throttledText{next: g, lim: lim}
}

func (t *throttledText) GenerateJSON(ctx context.Context, req JSONRequest) ([]byte, error) {
	if err := t.lim.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.GenerateJSON(ctx, req)
}

type throttledOCR struct {
	next Recognizer
	lim  *rate.Limiter
}

func ThrottleOCR(r Recognizer, lim *rate.Limiter) Recognizer {
	if r == nil || lim == nil {
		return r
	}
	return &throttledOCR{next: r, lim: lim}
}

func (t *throttledOCR) Recognize(ctx context.Context, img Image) (string, error) {
	if err := t.lim.Wait(ctx); err != nil {
		return "", err
	}
	return t.next.Recognize(ctx, img)
}
