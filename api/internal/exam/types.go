package exam

import (
	"fmt"
	"strings"
	"time"
)

type QuestionType string

const (
	MCQ         QuestionType = "mcq"
	TrueFalse   QuestionType = "true_false"
	ShortAnswer QuestionType = "short_answer"
	LongAnswer  QuestionType = "long_answer"
)

// QuestionTypes is the canonical order used for plans, generation and ids.
var QuestionTypes = []QuestionType{MCQ, TrueFalse, ShortAnswer, LongAnswer}

// ParseQuestionType accepts the canonical names plus the legacy
// mcq_single/mcq_multi spellings.
func ParseQuestionType(s string) (QuestionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mcq", "mcq_single", "mcq_multi", "multiple_choice":
		return MCQ, nil
	case "true_false", "tf", "true/false":
		return TrueFalse, nil
	case "short_answer", "short":
		return ShortAnswer, nil
	case "long_answer", "long", "essay":
		return LongAnswer, nil
	}
	return "", fmt.Errorf("unknown question type %q", s)
}

// DefaultMarks is the maximum score assigned when the generator omits one.
func (t QuestionType) DefaultMarks() float64 {
	switch t {
	case ShortAnswer:
		return 2
	case LongAnswer:
		return 3
	default:
		return 1
	}
}

// DefaultMarks is the type's mark with multi-answer mcq questions worth 2.
func (q QuestionSpec) DefaultMarks() float64 {
	if q.Type == MCQ {
		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct > 1 {
			return 2
		}
	}
	return q.Type.DefaultMarks()
}

type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return Easy, nil
	case "medium":
		return Medium, nil
	case "hard":
		return Hard, nil
	}
	return "", fmt.Errorf("%w: unknown difficulty %q", ErrInvalidDistributionRequest, s)
}

type Length string

const (
	Short Length = "Short"
	Long  Length = "Long"
)

func ParseLength(s string) (Length, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short":
		return Short, nil
	case "long":
		return Long, nil
	}
	return "", fmt.Errorf("%w: unknown length %q", ErrInvalidDistributionRequest, s)
}

type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type QuestionSpec struct {
	ID           string       `json:"question_id"`
	Number       int          `json:"question_number"`
	Type         QuestionType `json:"question_type"`
	Text         string       `json:"question_text"`
	Options      []Option     `json:"options,omitempty"`
	Answer       string       `json:"correct_answer"`
	MaxMarks     float64      `json:"maximum_marks"`
	Difficulty   string       `json:"difficulty,omitempty"`
	ContainsMath bool         `json:"contains_math_expression"`
}

// ReferenceAnswer returns the stored answer, or the text of the correct
// options for mcq questions that carry none.
func (q QuestionSpec) ReferenceAnswer() string {
	if s := strings.TrimSpace(q.Answer); s != "" {
		return s
	}
	var parts []string
	for _, o := range q.Options {
		if o.IsCorrect {
			parts = append(parts, strings.TrimSpace(o.Text))
		}
	}
	return strings.Join(parts, "; ")
}

// DistributionPlan maps a question type to the number of questions requested.
type DistributionPlan map[QuestionType]int

func (p DistributionPlan) Total() int {
	n := 0
	for _, c := range p {
		n += c
	}
	return n
}

type AnswerStatus string

const (
	AnswerFound    AnswerStatus = "found"
	AnswerNotFound AnswerStatus = "not_found"
)

const (
	ReasonNoMarker     = "no_marker"
	ReasonEmptySegment = "empty_segment"
)

type AnswerRecord struct {
	QuestionID string       `json:"question_id"`
	Text       string       `json:"answer"`
	PageIndex  int          `json:"page_index"`
	Status     AnswerStatus `json:"status"`
	Reason     string       `json:"reason,omitempty"`
}

func MissingAnswer(id, reason string) AnswerRecord {
	return AnswerRecord{QuestionID: id, PageIndex: -1, Status: AnswerNotFound, Reason: reason}
}

type ErrorCategory string

const (
	Conceptual  ErrorCategory = "conceptual"
	Procedural  ErrorCategory = "procedural"
	Careless    ErrorCategory = "careless"
	NoMistake   ErrorCategory = "none"
	Unattempted ErrorCategory = "unattempted"
)

// ParseErrorCategory maps model spellings ("No mistake", "Careless") to the
// canonical categories.
func ParseErrorCategory(s string) (ErrorCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conceptual":
		return Conceptual, true
	case "procedural":
		return Procedural, true
	case "careless":
		return Careless, true
	case "none", "no mistake", "no_mistake", "":
		return NoMistake, true
	}
	return "", false
}

type FeedbackStatus string

const (
	FeedbackAvailable   FeedbackStatus = "available"
	FeedbackUnattempted FeedbackStatus = "unattempted"
	FeedbackUnavailable FeedbackStatus = "unavailable"
)

type FeedbackRecord struct {
	QuestionID    string         `json:"question_id"`
	Explanation   string         `json:"explanation"`
	AwardedScore  float64        `json:"awarded_score"`
	MaxScore      float64        `json:"maximum_marks"`
	ErrorCategory ErrorCategory  `json:"error_type,omitempty"`
	NextStep      string         `json:"next_step,omitempty"`
	Status        FeedbackStatus `json:"status"`
	Reason        string         `json:"reason,omitempty"`
}

func UnavailableFeedback(q QuestionSpec, reason string) FeedbackRecord {
	return FeedbackRecord{
		QuestionID: q.ID,
		MaxScore:   q.MaxMarks,
		Status:     FeedbackUnavailable,
		Reason:     reason,
	}
}

type MergedResult struct {
	Question QuestionSpec   `json:"question"`
	Answer   AnswerRecord   `json:"answer"`
	Feedback FeedbackRecord `json:"feedback"`
}

type Summary struct {
	AwardedTotal float64                `json:"awarded_total"`
	MaximumTotal float64                `json:"maximum_total"`
	Questions    int                    `json:"questions"`
	ByStatus     map[FeedbackStatus]int `json:"by_status"`
}

type Evaluation struct {
	Merged    []MergedResult `json:"merged"`
	Summary   Summary        `json:"summary"`
	Anomalies []Anomaly      `json:"anomalies"`
}

// UnmarshalText folds legacy spellings into the canonical type. Unknown
// values are kept so that validation can report them.
func (t *QuestionType) UnmarshalText(b []byte) error {
	if qt, err := ParseQuestionType(string(b)); err == nil {
		*t = qt
		return nil
	}
	*t = QuestionType(strings.TrimSpace(string(b)))
	return nil
}

// Test is a generated test as stored and returned to clients.
type Test struct {
	ID                  string               `json:"test_id"`
	Grade               string               `json:"grade"`
	Subject             string               `json:"subject"`
	Topic               string               `json:"topic"`
	Difficulty          Difficulty           `json:"difficulty_level"`
	Length              Length               `json:"length"`
	Instructions        []string             `json:"special_instructions,omitempty"`
	Plan                DistributionPlan     `json:"plan"`
	Questions           []QuestionSpec       `json:"questions"`
	UnsupportedBySource bool                 `json:"unsupported_by_source"`
	Shortfall           map[QuestionType]int `json:"shortfall,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
}
