package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"evater/api/internal/exam"
	"evater/api/internal/util"
)

// Schema is a compiled JSON schema for one kind of model output.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

func Compile(name string, raw []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	url := name + ".schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: s}, nil
}

// Validate checks a raw JSON document. Failures wrap exam.ErrSchemaValidation.
func (s *Schema) Validate(raw []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %s: bad json: %v", exam.ErrSchemaValidation, s.name, err)
	}
	if err := s.schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %s: %s", exam.ErrSchemaValidation, s.name, flatten(err))
	}
	return nil
}

// Result is the outcome of decoding untrusted model output.
type Result[T any] struct {
	Value  T
	Valid  bool
	Reason string
}

func Valid[T any](v T) Result[T] { return Result[T]{Value: v, Valid: true} }

func Invalid[T any](reason string) Result[T] { return Result[T]{Reason: reason} }

// Decode strips code fences, validates raw against s and unmarshals it into T.
func Decode[T any](s *Schema, raw []byte) Result[T] {
	clean := []byte(util.StripCodeFences(string(raw)))
	if len(clean) == 0 {
		return Invalid[T]("empty output")
	}
	if err := s.Validate(clean); err != nil {
		return Invalid[T](err.Error())
	}
	var v T
	if err := json.Unmarshal(clean, &v); err != nil {
		return Invalid[T](fmt.Sprintf("decode %s: %v", s.name, err))
	}
	return Valid(v)
}

func flatten(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		var parts []string
		var walk func(e *jsonschema.ValidationError)
		walk = func(e *jsonschema.ValidationError) {
			if len(e.Causes) == 0 {
				parts = append(parts, fmt.Sprintf("%s: %s", e.InstanceLocation, e.Message))
				return
			}
			for _, c := range e.Causes {
				walk(c)
			}
		}
		walk(ve)
		return strings.Join(parts, "; ")
	}
	return err.Error()
}
