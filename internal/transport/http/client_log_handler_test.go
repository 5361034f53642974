package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "adaptiveclean/internal/errors"
	"adaptiveclean/internal/middleware"
)

func TestClientLogHandler_Handle(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedLevel  string
		expectedMsg    string
	}{
		{
			name:           "info entry with data",
			body:           `{"level":"info","message":"chart rendered","data":{"component":"variants"}}`,
			expectedStatus: http.StatusAccepted,
			expectedLevel:  "INFO",
			expectedMsg:    "chart rendered",
		},
		{
			name:           "error entry",
			body:           `{"level":"error","message":"stream dropped","source":"run-view"}`,
			expectedStatus: http.StatusAccepted,
			expectedLevel:  "ERROR",
			expectedMsg:    "stream dropped",
		},
		{
			name:           "missing level defaults to info",
			body:           `{"message":"hello"}`,
			expectedStatus: http.StatusAccepted,
			expectedLevel:  "INFO",
			expectedMsg:    "hello",
		},
		{
			name:           "unknown level",
			body:           `{"level":"fatal","message":"boom"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing message",
			body:           `{"level":"info"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed json",
			body:           `{"level":`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
			handler := NewClientLogHandler(middleware.NewValidator(testLogger()), apierrors.NewErrorHandler(testLogger(), false), logger)

			req := httptest.NewRequest(http.MethodPost, "/api/logs", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			handler.Handle(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus != http.StatusAccepted {
				assert.Zero(t, logs.Len())
				return
			}

			var entry map[string]any
			require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
			assert.Equal(t, tt.expectedLevel, entry["level"])
			assert.Equal(t, tt.expectedMsg, entry["msg"])
			assert.Equal(t, "client_log", entry["handler"])
		})
	}
}
