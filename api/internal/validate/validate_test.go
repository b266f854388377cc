package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evater/api/internal/exam"
	"evater/api/internal/prompt"
)

type feedbackOut struct {
	Explanation  string  `json:"explanation"`
	AwardedScore float64 `json:"awarded_score"`
	ErrorType    string  `json:"error_type"`
	NextStep     string  `json:"next_step"`
}

func loadSchema(t *testing.T, name string) *Schema {
	t.Helper()
	raw, err := prompt.New("").SchemaBytes(name)
	require.NoError(t, err)
	s, err := Compile(name, raw)
	require.NoError(t, err)
	return s
}

func TestEmbeddedSchemasCompile(t *testing.T) {
	for _, name := range []string{prompt.Question, prompt.Feedback, prompt.OCR} {
		loadSchema(t, name)
	}
}

func TestDecodeValid(t *testing.T) {
	s := loadSchema(t, prompt.Feedback)
	r := Decode[feedbackOut](s, []byte("```json\n{\"explanation\":\"ok\",\"awarded_score\":1.5,\"error_type\":\"none\",\"next_step\":\"\"}\n```"))
	require.True(t, r.Valid, r.Reason)
	assert.Equal(t, 1.5, r.Value.AwardedScore)
}

func TestDecodeInvalid(t *testing.T) {
	s := loadSchema(t, prompt.Feedback)

	cases := map[string]string{
		"empty":         "",
		"not json":      "sure, here it is",
		"missing field": `{"explanation":"x","awarded_score":1,"error_type":"none"}`,
		"bad enum":      `{"explanation":"x","awarded_score":1,"error_type":"cosmic","next_step":""}`,
		"extra field":   `{"explanation":"x","awarded_score":1,"error_type":"none","next_step":"","mood":"happy"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			r := Decode[feedbackOut](s, []byte(raw))
			assert.False(t, r.Valid)
			assert.NotEmpty(t, r.Reason)
		})
	}
}

func TestValidateWrapsSentinel(t *testing.T) {
	s := loadSchema(t, prompt.OCR)
	err := s.Validate([]byte(`{"raw_answer_text": 5}`))
	assert.ErrorIs(t, err, exam.ErrSchemaValidation)
	assert.NoError(t, s.Validate([]byte(`{"raw_answer_text": "Q1 yes"}`)))
}

func TestQuestionSchema(t *testing.T) {
	s := loadSchema(t, prompt.Question)
	ok := `{"question_text":"2+2?","question_type":"mcq","options":[{"text":"4","is_correct":true},{"text":"5","is_correct":false}],"correct_answer":"4","maximum_marks":1,"contains_math_expression":true}`
	assert.NoError(t, s.Validate([]byte(ok)))

	zeroMarks := `{"question_text":"2+2?","question_type":"mcq","options":[],"correct_answer":"4","maximum_marks":0,"contains_math_expression":true}`
	assert.Error(t, s.Validate([]byte(zeroMarks)))
}

func TestValidateNumbers(t *testing.T) {
	s := loadSchema(t, prompt.Feedback)

	require.NoError(t, s.Validate([]byte(`{"explanation":"x","awarded_score":2,"error_type":"none","next_step":""}`)))

	err := s.Validate([]byte(`{"explanation":"x","awarded_score":"2","error_type":"none","next_step":""}`))
	assert.ErrorIs(t, err, exam.ErrSchemaValidation)

	err = s.Validate([]byte(`{"explanation":`))
	assert.ErrorIs(t, err, exam.ErrSchemaValidation)
	assert.Contains(t, err.Error(), "bad json")
}
