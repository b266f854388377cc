package exam

import "errors"

var (
	ErrInvalidDistributionRequest = errors.New("invalid distribution request")
	ErrGenerationUnavailable      = errors.New("generative service unavailable")
	ErrSchemaValidation           = errors.New("schema validation failed")
	ErrOCRUnavailable             = errors.New("ocr service unavailable")
	ErrInvalidRequest             = errors.New("invalid request")
	ErrTestNotFound               = errors.New("test not found")
)

type AnomalyKind string

const (
	AnomalyUnmatchedText   AnomalyKind = "unmatched_text"
	AnomalyDuplicateMarker AnomalyKind = "duplicate_marker"
	AnomalyEmptyPage       AnomalyKind = "empty_page"
)

// Anomaly is a non-fatal segmentation finding reported next to the result.
type Anomaly struct {
	Kind       AnomalyKind `json:"kind"`
	QuestionID string      `json:"question_id,omitempty"`
	PageIndex  int         `json:"page_index"`
	Detail     string      `json:"detail,omitempty"`
}
