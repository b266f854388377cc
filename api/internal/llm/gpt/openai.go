package gpt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Engine talks to the OpenAI Responses API.
type Engine struct {
	APIKey  string
	Model   string
	BaseURL string
	httpc   *http.Client
}

func New(key, model string) *Engine {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	// long generations take a while before the first header arrives
	tr.ResponseHeaderTimeout = 120 * time.Second
	tr.MaxIdleConnsPerHost = 32

	return &Engine{
		APIKey:  strings.TrimSpace(key),
		Model:   strings.TrimSpace(model),
		BaseURL: defaultBaseURL,
		// no client timeout: the request context bounds the call
		httpc: &http.Client{Transport: tr},
	}
}

// WithHTTPClient replaces the HTTP client, for tests or custom transports.
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

type responsesRequest struct {
	Model       string      `json:"model"`
	Input       []message   `json:"input"`
	Temperature float64     `json:"temperature"`
	Text        textOptions `json:"text"`
}

type message struct {
	Role    string `json:"role"`
	Content []part `json:"content"`
}

type part struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type textOptions struct {
	Format schemaFormat `json:"format"`
}

type schemaFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responsesEnvelope struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text"`
			Refusal string `json:"refusal"`
		} `json:"content"`
	} `json:"output"`
}

var errEmptyOutput = errors.New("empty output")

// responseText returns the model text of a Responses API body. output_text
// wins; otherwise the text parts of all output items are joined by newlines.
// Refusals, API errors and incomplete responses are errors.
func responseText(raw []byte) (string, error) {
	var env responsesEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if env.Error != nil && env.Error.Message != "" {
		return "", fmt.Errorf("api error %s: %s", env.Error.Code, env.Error.Message)
	}
	if env.Status == "incomplete" {
		reason := "unknown"
		if env.IncompleteDetails != nil && env.IncompleteDetails.Reason != "" {
			reason = env.IncompleteDetails.Reason
		}
		return "", fmt.Errorf("response incomplete: %s", reason)
	}
	if s := strings.TrimSpace(env.OutputText); s != "" {
		return s, nil
	}

	var texts []string
	refusal := ""
	for _, o := range env.Output {
		for _, c := range o.Content {
			switch c.Type {
			case "refusal":
				refusal = strings.TrimSpace(c.Refusal)
			case "output_text", "text", "":
				if strings.TrimSpace(c.Text) != "" {
					texts = append(texts, c.Text)
				}
			}
		}
	}
	if len(texts) == 0 && refusal != "" {
		return "", fmt.Errorf("model refused: %s", refusal)
	}
	if len(texts) == 0 {
		return "", errEmptyOutput
	}
	return strings.Join(texts, "\n"), nil
}

func isOpenAIImageMIME(m string) bool {
	switch strings.ToLower(strings.TrimSpace(m)) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp", "image/gif":
		return true
	}
	return false
}
