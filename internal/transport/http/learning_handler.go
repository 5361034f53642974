package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "adaptiveclean/internal/errors"
	"adaptiveclean/internal/feedback"
	"adaptiveclean/internal/middleware"
	"adaptiveclean/internal/services"
)

// LearningHandler exposes the feedback learner.
type LearningHandler struct {
	learning  *services.LearningService
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewLearningHandler creates a learning handler.
func NewLearningHandler(learning *services.LearningService, v *middleware.Validator, errs *apierrors.ErrorHandler, logger *slog.Logger) *LearningHandler {
	return &LearningHandler{
		learning:  learning,
		validator: v,
		errors:    errs,
		logger:    logger.With(slog.String("handler", "learning")),
	}
}

// Feedback handles POST /api/feedback
func (h *LearningHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var fb feedback.UserFeedback
	if err := h.validator.Decode(w, r, &fb); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, h.learning.Feedback(r.Context(), fb))
}

// PredictionFeedback handles POST /api/feedback/predictions
func (h *LearningHandler) PredictionFeedback(w http.ResponseWriter, r *http.Request) {
	var fb feedback.PredictionFeedback
	if err := h.validator.Decode(w, r, &fb); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, h.learning.PredictionFeedback(r.Context(), fb))
}

// Report handles GET /api/learning/report
func (h *LearningHandler) Report(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.learning.Report())
}

// Reset handles POST /api/learning/reset
func (h *LearningHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.learning.Reset(r.Context())
	render.JSON(w, r, map[string]string{"status": "reset"})
}

// Retrain handles POST /api/learning/retrain
func (h *LearningHandler) Retrain(w http.ResponseWriter, r *http.Request) {
	res, err := h.learning.Retrain(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}
