package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveclean/internal/ingest"
	"adaptiveclean/internal/operations"
	"adaptiveclean/internal/pipeline"
	"adaptiveclean/internal/storage"
)

func quietHandler() *ErrorHandler {
	return NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), false)
}

func TestErrorToProblemMapsDomainErrors(t *testing.T) {
	type payload struct {
		Algorithm string `validate:"required"`
	}
	fieldErr := validator.New().Struct(payload{})
	_, algErr := pipeline.ParseAlgorithm("magic")

	stepErr := operations.NewExecutionError("normalization", &pipeline.StepError{StepID: "normalization", Err: errors.New("boom")})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"unsupported algorithm", operations.NewValidationError("algorithm rejected", algErr), http.StatusBadRequest, TypeUnsupportedAlgorithm},
		{"dataset not found", fmt.Errorf("load: %w", storage.ErrNotFound), http.StatusNotFound, TypeDatasetNotFound},
		{"access denied", storage.ErrAccessDenied, http.StatusForbidden, TypeDatasetAccessDenied},
		{"run not found", operations.ErrRunNotFound, http.StatusNotFound, TypeRunNotFound},
		{"run id in use", operations.ErrRunExists, http.StatusConflict, TypeConflict},
		{"transform failure", stepErr, http.StatusUnprocessableEntity, TypeTransformFailure},
		{"cancelled", operations.NewCancellationError("start", context.Canceled), http.StatusConflict, TypeRunCancelled},
		{"unsupported format", fmt.Errorf("%w: .zip", ingest.ErrUnsupportedFormat), http.StatusUnsupportedMediaType, TypeUnsupportedFormat},
		{"empty upload", ingest.ErrEmptyInput, http.StatusUnprocessableEntity, TypeDataUnreadable},
		{"validator", fieldErr, http.StatusBadRequest, TypeValidation},
		{"body too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, TypePayloadTooLarge},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"api error", ErrRateLimitExceeded, http.StatusTooManyRequests, TypeRateLimit},
		{"storage app error", NewStorageError("save failed", errors.New("disk")), http.StatusInternalServerError, TypeStorage},
		{"parsing app error", NewParsingError("bad csv", nil), http.StatusUnprocessableEntity, TypeDataUnreadable},
		{"unknown", errors.New("mystery"), http.StatusInternalServerError, TypeInternal},
	}

	h := quietHandler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/datasets/x", nil)
			p := h.ErrorToProblem(tt.err, r)
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, tt.wantType, p.Type)
			assert.Equal(t, "/api/datasets/x", p.Instance)
		})
	}
}

func TestTransformFailureCarriesStep(t *testing.T) {
	err := operations.NewExecutionError("normalization", &pipeline.StepError{StepID: "normalization", Err: errors.New("boom")})
	p := quietHandler().ErrorToProblem(err, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "normalization", p.Extensions["step"])
}

func TestHandleErrorWritesProblemJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/datasets/missing", nil)
	quietHandler().HandleError(rec, req, storage.ErrNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, TypeDatasetNotFound, body["type"])
	assert.Equal(t, float64(http.StatusNotFound), body["status"])
	assert.Contains(t, body, "trace_id")
}

func TestProblemResponsesKeepMediaType(t *testing.T) {
	h := quietHandler()
	tests := []struct {
		name       string
		method     string
		write      func(w http.ResponseWriter, r *http.Request)
		wantStatus int
	}{
		{"error on GET", http.MethodGet, func(w http.ResponseWriter, r *http.Request) { h.HandleError(w, r, storage.ErrAccessDenied) }, http.StatusForbidden},
		{"error on POST", http.MethodPost, func(w http.ResponseWriter, r *http.Request) { h.HandleError(w, r, errors.New("boom")) }, http.StatusInternalServerError},
		{"panic", http.MethodPost, func(w http.ResponseWriter, r *http.Request) { h.HandlePanic(w, r, "boom") }, http.StatusInternalServerError},
		{"not found", http.MethodGet, h.NotFound, http.StatusNotFound},
		{"method not allowed", http.MethodPut, h.MethodNotAllowed, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec, httptest.NewRequest(tt.method, "/api/x", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, ProblemContentType, rec.Header().Get("Content-Type"))
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, float64(tt.wantStatus), body["status"])
		})
	}
}

func TestHandleErrorIgnoresNil(t *testing.T) {
	rec := httptest.NewRecorder()
	quietHandler().HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Equal(t, 0, rec.Body.Len())
}

func TestProblemExtensionsCannotOverrideStatus(t *testing.T) {
	p := NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found", "", "").WithExtension("status", 200)
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"/errors/not-found","title":"Not Found","status":404}`, string(b))
}

func TestSanitizeRequestBody(t *testing.T) {
	out := sanitizeRequestBody(`{"spreadsheet_id":"abc","credentials_json":"secret"}`)
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "secret")
	assert.Equal(t, "plain", sanitizeRequestBody("plain"))
}

func TestAppErrorContext(t *testing.T) {
	err := NewConfigError("bad", errors.New("cause")).WithContext("key", "storage.kind")
	assert.Equal(t, "[CONFIG] bad: cause", err.Error())
	assert.Equal(t, "storage.kind", err.Context["key"])
	assert.ErrorContains(t, errors.Unwrap(err), "cause")
}

func TestErrorMiddlewareLogsSanitizedBodyOnFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	mw := NewErrorMiddleware(quietHandler(), logger)
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusBadRequest)
	}))

	body := `{"spreadsheet_id":"abc","credentials_json":"secret"}`
	req := httptest.NewRequest(http.MethodPost, "/api/datasets/sheets", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http_request", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Contains(t, entry["request_body"], "[REDACTED]")
	assert.NotContains(t, entry["request_body"], "secret")
}
