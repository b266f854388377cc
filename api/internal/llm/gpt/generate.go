package gpt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"evater/api/internal/llm"
	"evater/api/internal/util"
)

// GenerateJSON calls the Responses API with a strict json_schema text format.
func (e *Engine) GenerateJSON(ctx context.Context, req llm.JSONRequest) ([]byte, error) {
	if e.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is empty")
	}

	schema := util.CloneSchema(req.Schema)
	util.FixJSONSchemaStrict(schema)

	input, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("openai %s: input: %w", req.Name, err)
	}
	user := []part{{Type: "input_text", Text: string(input)}}
	for i, img := range req.Images {
		mime := util.PickMIME(img.MIME, "", img.Data)
		if !isOpenAIImageMIME(mime) {
			return nil, fmt.Errorf("openai %s: image %d: unsupported mime %q", req.Name, i, mime)
		}
		user = append(user, part{
			Type:     "input_image",
			ImageURL: util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(img.Data)),
		})
	}

	body := responsesRequest{
		Model: e.Model,
		Input: []message{
			{Role: "system", Content: []part{{Type: "input_text", Text: req.System}}},
			{Role: "user", Content: user},
		},
		Text: textOptions{Format: schemaFormat{
			Type:   "json_schema",
			Name:   req.Name,
			Strict: true,
			Schema: schema,
		}},
	}
	// gpt-5 models accept only the default temperature
	if strings.Contains(e.Model, "gpt-5") {
		body.Temperature = 1
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(e.BaseURL, "/")+"/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai %s %d: %s", req.Name, resp.StatusCode, util.Truncate(strings.TrimSpace(string(raw)), 1024))
	}

	text, err := responseText(raw)
	if err != nil {
		return nil, fmt.Errorf("openai %s: %w", req.Name, err)
	}
	out := util.StripCodeFences(text)
	if out == "" {
		return nil, fmt.Errorf("openai %s: %w", req.Name, errEmptyOutput)
	}
	return []byte(out), nil
}
