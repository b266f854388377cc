package handle

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"evater/api/internal/exam"
)

type GenAnswerRequest struct {
	ImageURL  FlexStrings      `json:"image_url"`
	Questions exam.QuestionSet `json:"questions"`
	TestID    string           `json:"test_id"`
}

func (h *Handle) GenAnswer(w http.ResponseWriter, r *http.Request) {
	var req GenAnswerRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.ImageURL) == 0 {
		writeError(w, http.StatusBadRequest, "image_url is required")
		return
	}
	testID := strings.TrimSpace(req.TestID)
	if len(req.Questions) == 0 && testID == "" {
		writeError(w, http.StatusBadRequest, "questions or test_id is required")
		return
	}
	if err := req.Questions.Check(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	images, err := h.images.Fetch(ctx, req.ImageURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var ev exam.Evaluation
	if len(req.Questions) > 0 {
		ev, err = h.svc.Evaluate(ctx, req.Questions, images)
	} else {
		ev, err = h.svc.EvaluateTest(ctx, testID, images)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handle) GetTest(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.FindTest(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
