package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"adaptiveclean/internal/ingest"
	"adaptiveclean/internal/operations"
	"adaptiveclean/internal/pipeline"
	"adaptiveclean/internal/storage"
)

// Common error types following RFC 7807
const (
	TypeValidation        = "/errors/validation"
	TypeNotFound          = "/errors/not-found"
	TypeForbidden         = "/errors/forbidden"
	TypeRateLimit         = "/errors/rate-limit"
	TypeInternal          = "/errors/internal"
	TypeServiceDown       = "/errors/service-unavailable"
	TypeTimeout           = "/errors/timeout"
	TypeConflict          = "/errors/conflict"
	TypePayloadTooLarge   = "/errors/payload-too-large"
	TypeUnsupportedFormat = "/errors/unsupported-media-type"
)

// Domain-specific error types
const (
	TypeUnsupportedAlgorithm = "/errors/run/unsupported-algorithm"
	TypeTransformFailure     = "/errors/run/transform-failure"
	TypeRunCancelled         = "/errors/run/cancelled"
	TypeRunNotFound          = "/errors/run/not-found"
	TypeDatasetNotFound      = "/errors/dataset/not-found"
	TypeDatasetAccessDenied  = "/errors/dataset/access-denied"
	TypeDataUnreadable       = "/errors/dataset/unreadable"
	TypeStorage              = "/errors/storage"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())
	problem := h.ErrorToProblem(err, r)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request_failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	problem.WithExtension("trace_id", reqID)
	if h.includeStack {
		problem.WithExtension("stack", getStackTrace())
	}
	WriteProblem(w, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details. Domain
// sentinels are matched with errors.Is so wrapping keeps the mapping.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	path := r.URL.Path

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, len(fieldErrs))
		for i, fe := range fieldErrs {
			out[i] = ValidationError{Field: fe.Field(), Message: fmt.Sprintf("failed %q validation", fe.Tag())}
		}
		return NewProblemDetails(http.StatusBadRequest, TypeValidation, "Validation Failed",
			"Request validation failed", path).WithExtension("errors", out)
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return NewProblemDetails(http.StatusRequestEntityTooLarge, TypePayloadTooLarge, "Payload Too Large",
			fmt.Sprintf("The request body exceeds %d bytes", tooLarge.Limit), path)
	}

	switch {
	case errors.Is(err, pipeline.ErrUnsupportedAlgorithm):
		return NewProblemDetails(http.StatusBadRequest, TypeUnsupportedAlgorithm, "Unsupported Algorithm",
			err.Error(), path).WithExtension("supported", pipeline.Algorithms())

	case errors.Is(err, storage.ErrNotFound):
		return NewProblemDetails(http.StatusNotFound, TypeDatasetNotFound, "Dataset Not Found", err.Error(), path)

	case errors.Is(err, storage.ErrAccessDenied):
		return NewProblemDetails(http.StatusForbidden, TypeDatasetAccessDenied, "Forbidden",
			"You don't have permission to access this dataset", path)

	case errors.Is(err, operations.ErrRunNotFound):
		return NewProblemDetails(http.StatusNotFound, TypeRunNotFound, "Run Not Found", err.Error(), path)

	case errors.Is(err, operations.ErrRunExists):
		return NewProblemDetails(http.StatusConflict, TypeConflict, "Run Already Active", err.Error(), path)

	case errors.Is(err, pipeline.ErrTransformFailure):
		problem := NewProblemDetails(http.StatusUnprocessableEntity, TypeTransformFailure, "Transform Failed", err.Error(), path)
		var opErr *operations.OperationError
		if errors.As(err, &opErr) && opErr.Step != "" {
			problem.WithExtension("step", opErr.Step)
		}
		return problem

	case errors.Is(err, operations.ErrCancelled):
		return NewProblemDetails(http.StatusConflict, TypeRunCancelled, "Run Cancelled", err.Error(), path)

	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return NewProblemDetails(http.StatusUnsupportedMediaType, TypeUnsupportedFormat, "Unsupported Media Type", err.Error(), path)

	case errors.Is(err, ingest.ErrEmptyInput):
		return NewProblemDetails(http.StatusUnprocessableEntity, TypeDataUnreadable, "Unreadable Dataset", err.Error(), path)

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"The request took too long to process and was cancelled", path)
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErrorToProblem(appErr, path)
	}

	if operations.GetErrorType(err) == operations.ErrorTypeValidation {
		return NewProblemDetails(http.StatusBadRequest, TypeValidation, "Validation Failed", err.Error(), path)
	}

	return NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request",
		path,
	)
}

func appErrorToProblem(e *AppError, path string) *ProblemDetails {
	status, problemType := http.StatusInternalServerError, TypeInternal
	switch e.Type {
	case ErrTypeValidation:
		status, problemType = http.StatusBadRequest, TypeValidation
	case ErrTypeParsing:
		status, problemType = http.StatusUnprocessableEntity, TypeDataUnreadable
	case ErrTypeNotFound:
		status, problemType = http.StatusNotFound, TypeNotFound
	case ErrTypePermission:
		status, problemType = http.StatusForbidden, TypeForbidden
	case ErrTypeNetwork:
		status, problemType = http.StatusBadGateway, TypeServiceDown
	case ErrTypeStorage:
		problemType = TypeStorage
	}

	detail := e.Message
	if status < http.StatusInternalServerError && e.Cause != nil {
		detail = e.Error()
	}
	problem := NewProblemDetails(status, problemType, http.StatusText(status), detail, path)
	if len(e.Context) > 0 {
		problem.WithExtension("context", e.Context)
	}
	return problem
}

// apiErrorToProblem converts APIError to ProblemDetails
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case "VALIDATION_FAILED", "INVALID_REQUEST", "MISSING_PARAMETER":
		problemType = TypeValidation
	case "NOT_FOUND":
		problemType = TypeNotFound
	case "FORBIDDEN":
		problemType = TypeForbidden
	case "CONFLICT":
		problemType = TypeConflict
	case "RATE_LIMIT_EXCEEDED":
		problemType = TypeRateLimit
	case "SERVICE_UNAVAILABLE":
		problemType = TypeServiceDown
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic_recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	WriteProblem(w, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	WriteProblem(w, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeInternal,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	WriteProblem(w, problem)
}

// getStackTrace returns the current stack trace
func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// JSON helper for consistent JSON responses
func (h *ErrorHandler) JSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
