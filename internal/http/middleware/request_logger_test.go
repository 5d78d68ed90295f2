package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dentalchat-ai/platform/pkg/logging"
)

func TestRequestLoggerRecordsStatusAndSize(t *testing.T) {
	var buf bytes.Buffer
	logger := &logging.Logger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	mw := RequestLogger(logger)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	})).ServeHTTP(rec, req)

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-123"`) {
		t.Fatalf("expected supplied request id in logs, got: %s", out)
	}
	if !strings.Contains(out, `"status":201`) {
		t.Fatalf("expected response status in completion log, got: %s", out)
	}
	if !strings.Contains(out, `"bytes":7`) {
		t.Fatalf("expected response size in completion log, got: %s", out)
	}
}
