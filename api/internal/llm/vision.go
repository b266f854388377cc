package llm

import (
	"context"
	"fmt"
	"strings"

	"evater/api/internal/prompt"
	"evater/api/internal/util"
	"evater/api/internal/validate"
)

type ocrOutput struct {
	RawAnswerText string `json:"raw_answer_text"`
}

// VisionOCR reads answer sheets through a multimodal TextGenerator using the
// ocr prompt and schema.
type VisionOCR struct {
	gen       TextGenerator
	system    string
	schema    map[string]any
	validator *validate.Schema
}

func NewVisionOCR(gen TextGenerator, prompts *prompt.Loader) (*VisionOCR, error) {
	system, err := prompts.System(prompt.OCR)
	if err != nil {
		return nil, err
	}
	raw, err := prompts.SchemaBytes(prompt.OCR)
	if err != nil {
		return nil, err
	}
	v, err := validate.Compile(prompt.OCR, raw)
	if err != nil {
		return nil, err
	}
	schema, err := prompts.Schema(prompt.OCR)
	if err != nil {
		return nil, err
	}
	return &VisionOCR{gen: gen, system: system, schema: schema, validator: v}, nil
}

func (v *VisionOCR) Recognize(ctx context.Context, img Image) (string, error) {
	raw, err := v.gen.GenerateJSON(ctx, JSONRequest{
		Name:   prompt.OCR,
		System: v.system,
		Input:  map[string]any{"task": "transcribe the handwritten answer sheet on the image"},
		Schema: util.CloneSchema(v.schema),
		Images: []Image{img},
	})
	if err != nil {
		return "", err
	}
	res := validate.Decode[ocrOutput](v.validator, raw)
	if !res.Valid {
		return "", fmt.Errorf("vision ocr: %s", res.Reason)
	}
	return strings.TrimSpace(res.Value.RawAnswerText), nil
}
