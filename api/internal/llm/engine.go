package llm

import (
	"context"
	"errors"
	"strings"
)

type Image struct {
	Data []byte
	MIME string
}

// JSONRequest is one structured call to a generative model. Schema describes
// the expected output and is sent to the provider; callers validate the
// returned bytes themselves.
type JSONRequest struct {
	Name   string
	System string
	Input  any
	Schema map[string]any
	Images []Image
}

// TextGenerator returns raw JSON produced by a model for a request.
type TextGenerator interface {
	GenerateJSON(ctx context.Context, req JSONRequest) ([]byte, error)
}

// Recognizer turns a photographed page into plain text.
type Recognizer interface {
	Recognize(ctx context.Context, img Image) (string, error)
}

type GenerateFunc func(ctx context.Context, req JSONRequest) ([]byte, error)

func (f GenerateFunc) GenerateJSON(ctx context.Context, req JSONRequest) ([]byte, error) {
	return f(ctx, req)
}

type RecognizeFunc func(ctx context.Context, img Image) (string, error)

func (f RecognizeFunc) Recognize(ctx context.Context, img Image) (string, error) {
	return f(ctx, img)
}

// Engines is the provider registry. Gemini and GPT serve text generation and
// vision OCR; Yandex is OCR only.
type Engines struct {
	Gemini    TextGenerator
	GPT       TextGenerator
	GeminiOCR Recognizer
	GPTOCR    Recognizer
	YandexOCR Recognizer
}

func (e *Engines) GetText(llmName string) (TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(llmName)) {
	case "gemini", "":
		if e.Gemini != nil {
			return e.Gemini, nil
		}
	case "gpt", "openai":
		if e.GPT != nil {
			return e.GPT, nil
		}
	default:
		return nil, errors.New("unknown llm_name; use 'gemini' or 'gpt'")
	}
	return nil, errors.New("llm " + llmName + " is not configured")
}

func (e *Engines) GetOCR(name string) (Recognizer, error) {
	var r Recognizer
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini", "":
		r = e.GeminiOCR
	case "gpt", "openai":
		r = e.GPTOCR
	case "yandex":
		r = e.YandexOCR
	default:
		return nil, errors.New("unknown ocr engine; use 'gemini', 'gpt' or 'yandex'")
	}
	if r == nil {
		return nil, errors.New("ocr engine " + name + " is not configured")
	}
	return r, nil
}
