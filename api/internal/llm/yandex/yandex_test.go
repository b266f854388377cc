package yandex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evater/api/internal/llm"
)

func newTestEngine(t *testing.T, ocr http.HandlerFunc) (*Engine, *atomic.Int32) {
	t.Helper()
	var issued atomic.Int32
	iam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := issued.Add(1)
		_, _ = w.Write([]byte(`{"iamToken":"tok` + string(rune('0'+n)) + `"}`))
	}))
	t.Cleanup(iam.Close)
	srv := httptest.NewServer(ocr)
	t.Cleanup(srv.Close)

	e := New("oauth", "folder")
	e.URL = srv.URL
	e.iamc.URL = iam.URL
	return e, &issued
}

func TestRecognizeFullText(t *testing.T) {
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok1", r.Header.Get("Authorization"))
		assert.Equal(t, "folder", r.Header.Get("x-folder-id"))
		_, _ = w.Write([]byte(`{"result":{"textAnnotation":{"fullText":" Q1 photosynthesis \n"}}}`))
	})
	txt, err := e.Recognize(context.Background(), llm.Image{Data: []byte{0xFF, 0xD8, 0x00}})
	require.NoError(t, err)
	assert.Equal(t, "Q1 photosynthesis", txt)
}

func TestRecognizeFallsBackToLines(t *testing.T) {
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"textAnnotation":{"blocks":[{"lines":[{"text":"1. yes"},{"text":" "}]},{"lines":[{"text":"2. no"}]}]}}}`))
	})
	txt, err := e.Recognize(context.Background(), llm.Image{Data: []byte{0xFF, 0xD8}})
	require.NoError(t, err)
	assert.Equal(t, "1. yes\n2. no", txt)
}

func TestRecognizeRetriesOnUnauthorized(t *testing.T) {
	var calls atomic.Int32
	e, issued := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer tok2", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"result":{"textAnnotation":{"fullText":"ok"}}}`))
	})
	txt, err := e.Recognize(context.Background(), llm.Image{Data: []byte{0xFF, 0xD8}})
	require.NoError(t, err)
	assert.Equal(t, "ok", txt)
	assert.EqualValues(t, 2, issued.Load())
}

func TestRecognizeError(t *testing.T) {
	e, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`bad image`))
	})
	_, err := e.Recognize(context.Background(), llm.Image{Data: []byte{1}})
	assert.ErrorContains(t, err, "yandex ocr 400")
}
