package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	apierrors "adaptiveclean/internal/errors"
	"adaptiveclean/internal/middleware"
	"adaptiveclean/internal/operations"
	"adaptiveclean/internal/pipeline"
	"adaptiveclean/internal/services"
	"adaptiveclean/internal/transform"
)

// RunIDHeader carries the id of a streamed run so clients can cancel it.
const RunIDHeader = "X-Run-ID"

// RunHandler starts, streams and cancels runs.
type RunHandler struct {
	cleaning  *services.CleaningService
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewRunHandler creates a run handler.
func NewRunHandler(cleaning *services.CleaningService, v *middleware.Validator, errs *apierrors.ErrorHandler, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		cleaning:  cleaning,
		validator: v,
		errors:    errs,
		logger:    logger.With(slog.String("handler", "runs")),
	}
}

// RunRequest is the body of POST /api/datasets/{id}/runs. Without a config
// the learner resolves one from the dataset and the score history.
type RunRequest struct {
	Algorithm     string                    `json:"algorithm" validate:"required,algorithm"`
	Config        *pipeline.CleaningConfig  `json:"config,omitempty"`
	Rules         map[string]transform.Rule `json:"rules,omitempty" validate:"omitempty,dive"`
	ReferenceData map[string][]any          `json:"reference_data,omitempty"`
}

// BatchRequest is the body of POST /api/datasets/{id}/runs/batch.
type BatchRequest struct {
	Algorithms    []string                  `json:"algorithms" validate:"required,min=1,max=16,dive,algorithm"`
	Config        *pipeline.CleaningConfig  `json:"config,omitempty"`
	Rules         map[string]transform.Rule `json:"rules,omitempty" validate:"omitempty,dive"`
	ReferenceData map[string][]any          `json:"reference_data,omitempty"`
}

func (h *RunHandler) request(r *http.Request, algorithm string, cfg *pipeline.CleaningConfig, rules map[string]transform.Rule, ref map[string][]any) operations.Request {
	return operations.Request{
		DatasetID:     chi.URLParam(r, "id"),
		Scope:         middleware.ScopeFrom(r.Context()),
		Algorithm:     algorithm,
		Config:        cfg,
		Rules:         rules,
		ReferenceData: ref,
	}
}

// Run handles POST /api/datasets/{id}/runs
func (h *RunHandler) Run(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if err := h.validator.Decode(w, r, &body); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	req := h.request(r, body.Algorithm, body.Config, body.Rules, body.ReferenceData)
	req.RunID = uuid.NewString()

	out, err := h.cleaning.Run(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, out)
}

// RunBatch handles POST /api/datasets/{id}/runs/batch
func (h *RunHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var body BatchRequest
	if err := h.validator.Decode(w, r, &body); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	req := h.request(r, "", body.Config, body.Rules, body.ReferenceData)

	results, err := h.cleaning.RunMany(r.Context(), req, body.Algorithms)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}
	render.JSON(w, r, map[string]interface{}{
		"dataset_id": req.DatasetID,
		"results":    results,
		"failed":     failed,
	})
}

// Stream handles GET /api/datasets/{id}/runs/stream?algorithm=. Errors found
// before the run starts are answered as problem details; after that, every
// outcome arrives as an event and the stream ends.
func (h *RunHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	req := h.request(r, q.Get("algorithm"), nil, nil, nil)
	req.RunID = q.Get("run_id")
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if _, busy := h.cleaning.RunStatus(req.RunID); busy {
		h.errors.HandleError(w, r, operations.ErrRunExists)
		return
	}

	plan, err := h.cleaning.Prepare(ctx, req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would cut long runs short.
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(RunIDHeader, req.RunID)
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.ErrorContext(ctx, "stream_flush_unsupported", slog.String("error", err.Error()))
		return
	}

	out, err := h.cleaning.Execute(ctx, req.RunID, plan, &sseSink{w: w, rc: rc})
	switch {
	case errors.Is(err, operations.ErrCancelled):
		h.logger.InfoContext(ctx, "stream_cancelled",
			slog.String("run_id", req.RunID),
			slog.String("error", err.Error()))
	case err != nil:
		h.logger.WarnContext(ctx, "stream_failed",
			slog.String("run_id", req.RunID),
			slog.String("error", err.Error()))
	default:
		h.logger.InfoContext(ctx, "stream_completed",
			slog.String("run_id", req.RunID),
			slog.Int("variants", len(out.Variants)))
	}
}

// sseSink writes run events as server-sent events. A failed write means the
// client is gone, which the controller treats as cancellation.
type sseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (s *sseSink) Emit(_ context.Context, ev operations.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

// List handles GET /api/runs
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	runs := h.cleaning.Runs()
	render.JSON(w, r, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// Get handles GET /api/runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, ok := h.cleaning.RunStatus(chi.URLParam(r, "id"))
	if !ok {
		h.errors.HandleError(w, r, operations.ErrRunNotFound)
		return
	}
	render.JSON(w, r, status)
}

// Cancel handles DELETE /api/runs/{id}
func (h *RunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.cleaning.Cancel(id); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "run_cancel_accepted", slog.String("run_id", id))
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"run_id": id, "status": "cancelling"})
}

// Algorithms handles GET /api/algorithms
func (h *RunHandler) Algorithms(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"algorithms": h.cleaning.Algorithms(),
	})
}
