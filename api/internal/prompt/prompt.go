package prompt

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"evater/api/internal/util"
)

const (
	Questions = "questions"
	Question  = "question"
	Feedback  = "feedback"
	OCR       = "ocr"
)

//go:embed files/*
var files embed.FS

// Loader resolves system prompts and output schemas. Files under Dir named
// <name>.system.txt and <name>.schema.json override the embedded copies.
type Loader struct {
	Dir string
}

func New(dir string) *Loader {
	return &Loader{Dir: strings.TrimSpace(dir)}
}

func (l *Loader) System(name string) (string, error) {
	b, err := l.read(name + ".system.txt")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// SchemaBytes returns the raw schema document.
func (l *Loader) SchemaBytes(name string) ([]byte, error) {
	return l.read(name + ".schema.json")
}

// Schema returns a decoded copy of the schema that callers may modify.
func (l *Loader) Schema(name string) (map[string]any, error) {
	b, err := l.SchemaBytes(name)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("bad %s schema: %w", name, err)
	}
	util.EnsureSchemaMeta(m)
	return m, nil
}

func (l *Loader) read(file string) ([]byte, error) {
	if l != nil && l.Dir != "" {
		if b, err := os.ReadFile(filepath.Join(l.Dir, file)); err == nil && len(b) > 0 {
			return b, nil
		}
	}
	b, err := files.ReadFile("files/" + file)
	if err != nil {
		return nil, fmt.Errorf("prompt %q not found in %q or embedded files", file, l.dirOrEmpty())
	}
	return b, nil
}

func (l *Loader) dirOrEmpty() string {
	if l == nil {
		return ""
	}
	return l.Dir
}
