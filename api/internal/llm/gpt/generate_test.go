package gpt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evater/api/internal/llm"
)

var png = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func newTestEngine(t *testing.T, h http.HandlerFunc) *Engine {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	e := New("sk-test", "gpt-4o-mini").WithHTTPClient(srv.Client())
	e.BaseURL = srv.URL
	return e
}

func TestGenerateJSON(t *testing.T) {
	var got map[string]any
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"object":"response","output":[{"role":"assistant","content":[{"type":"output_text","text":"{\"raw_answer_text\":\"Q1 yes\"}"}]}]}`))
	})

	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"raw_answer_text": map[string]any{"type": "string", "minLength": float64(1)}},
	}
	out, err := e.GenerateJSON(context.Background(), llm.JSONRequest{
		Name:   "ocr",
		System: "read it",
		Input:  map[string]any{"task": "x"},
		Schema: schema,
		Images: []llm.Image{{Data: png}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"raw_answer_text":"Q1 yes"}`, string(out))

	format := got["text"].(map[string]any)["format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, true, format["strict"])
	sent := format["schema"].(map[string]any)
	assert.Equal(t, false, sent["additionalProperties"])
	assert.NotContains(t, sent["properties"].(map[string]any)["raw_answer_text"], "minLength")
	assert.Contains(t, schema["properties"].(map[string]any)["raw_answer_text"], "minLength", "caller schema untouched")

	input := got["input"].([]any)
	user := input[1].(map[string]any)["content"].([]any)
	require.Len(t, user, 2)
	assert.Equal(t, "input_image", user[1].(map[string]any)["type"])
	assert.Contains(t, user[1].(map[string]any)["image_url"], "data:image/png;base64,")
}

func TestGenerateJSONHTTPError(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	})
	_, err := e.GenerateJSON(context.Background(), llm.JSONRequest{Name: "feedback"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGenerateJSONEmptyOutput(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":"response","output":[]}`))
	})
	_, err := e.GenerateJSON(context.Background(), llm.JSONRequest{Name: "feedback"})
	assert.ErrorContains(t, err, "empty output")
}

func TestGenerateJSONRejectsPDF(t *testing.T) {
	e := New("sk", "m")
	_, err := e.GenerateJSON(context.Background(), llm.JSONRequest{Name: "ocr", Images: []llm.Image{{Data: []byte("%PDF-1.4"), MIME: "application/pdf"}}})
	assert.ErrorContains(t, err, "unsupported mime")
}

func TestResponseText(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr string
	}{
		{"output_text wins", `{"output_text":" hi ","output":[{"content":[{"type":"output_text","text":"other"}]}]}`, "hi", ""},
		{"joins text parts", `{"output":[{"content":[{"type":"output_text","text":"a"}]},{"content":[{"type":"text","text":"b"}]}]}`, "a\nb", ""},
		{"text beside refusal", `{"output":[{"content":[{"type":"refusal","refusal":"no"},{"type":"output_text","text":"a"}]}]}`, "a", ""},
		{"refusal only", `{"output":[{"content":[{"type":"refusal","refusal":"cannot help"}]}]}`, "", "model refused: cannot help"},
		{"incomplete", `{"status":"incomplete","incomplete_details":{"reason":"max_output_tokens"}}`, "", "max_output_tokens"},
		{"api error", `{"error":{"code":"server_error","message":"boom"}}`, "", "boom"},
		{"empty", `{"output":[]}`, "", "empty output"},
		{"not json", `nope`, "", "decode response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := responseText([]byte(tt.raw))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
