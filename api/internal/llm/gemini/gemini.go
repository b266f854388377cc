package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"evater/api/internal/llm"
	"evater/api/internal/util"
)

type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

// GenerateJSON sends the system prompt and the schema as system instruction,
// the JSON-encoded input and any images as user parts, and returns the model
// text with code fences removed.
func (e *Engine) GenerateJSON(ctx context.Context, req llm.JSONRequest) ([]byte, error) {
	if e.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return nil, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}

	schema, err := json.Marshal(req.Schema)
	if err != nil {
		return nil, fmt.Errorf("gemini %s: schema: %w", req.Name, err)
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{
			genai.Text(req.System),
			genai.Text(req.Name + ".schema.json:\n" + string(schema)),
		},
	}

	input, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("gemini %s: input: %w", req.Name, err)
	}
	parts := []genai.Part{
		genai.Text("Answer strictly with JSON matching " + req.Name + ".schema.json. No comments.\n" + string(input)),
	}
	for _, img := range req.Images {
		parts = append(parts, genai.Blob{MIMEType: util.PickMIME(img.MIME, "", img.Data), Data: img.Data})
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini %s: %w", req.Name, err)
	}
	txt := util.StripCodeFences(firstText(resp))
	if txt == "" {
		return nil, fmt.Errorf("gemini %s: empty response", req.Name)
	}
	return []byte(txt), nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
