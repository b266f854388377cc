package handle

import (
	"net/http"
	"slices"
	"strings"

	"evater/api/internal/exam"
	"evater/api/internal/pipeline"
)

type GenQuestionRequest struct {
	Grade               FlexString  `json:"grade"`
	Subject             string      `json:"subject"`
	Topic               string      `json:"topic"`
	DifficultyLevel     string      `json:"difficulty_level"`
	Length              string      `json:"length"`
	SpecialInstructions FlexStrings `json:"special_instructions"`
}

func (r GenQuestionRequest) missing() []string {
	var out []string
	for name, v := range map[string]string{
		"grade":            string(r.Grade),
		"subject":          r.Subject,
		"topic":            r.Topic,
		"difficulty_level": r.DifficultyLevel,
		"length":           r.Length,
	} {
		if strings.TrimSpace(v) == "" {
			out = append(out, name)
		}
	}
	return out
}

type GenQuestionResponse struct {
	TestID              string                    `json:"test_id"`
	Questions           []exam.QuestionSpec       `json:"questions"`
	Plan                exam.DistributionPlan     `json:"plan"`
	UnsupportedBySource bool                      `json:"unsupported_by_source"`
	Shortfall           map[exam.QuestionType]int `json:"shortfall,omitempty"`
}

func (h *Handle) GenQuestion(w http.ResponseWriter, r *http.Request) {
	var req GenQuestionRequest
	if !decode(w, r, &req) {
		return
	}
	if miss := req.missing(); len(miss) > 0 {
		slices.Sort(miss)
		writeError(w, http.StatusBadRequest, "missing required fields: "+strings.Join(miss, ", "))
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	t, err := h.svc.GenerateTest(ctx, pipeline.GenerateRequest{
		Grade:        string(req.Grade),
		Subject:      strings.TrimSpace(req.Subject),
		Topic:        strings.TrimSpace(req.Topic),
		Difficulty:   req.DifficultyLevel,
		Length:       req.Length,
		Instructions: req.SpecialInstructions,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	questions := t.Questions
	if questions == nil {
		questions = []exam.QuestionSpec{}
	}
	writeJSON(w, http.StatusOK, GenQuestionResponse{
		TestID:              t.ID,
		Questions:           questions,
		Plan:                t.Plan,
		UnsupportedBySource: t.UnsupportedBySource,
		Shortfall:           t.Shortfall,
	})
}
