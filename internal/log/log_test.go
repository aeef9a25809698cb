package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg := ConfigFromEnv(ComponentWorker)
	if cfg.Level != slog.LevelDebug || cfg.Format != "json" || cfg.Component != ComponentWorker {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Component: ComponentImport, Output: &buf})

	logger.Info("hello", "k", "v")
	logger.WithComponent(ComponentStorage).Debug("stored")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0][FieldComponent] != ComponentImport || lines[0]["k"] != "v" {
		t.Errorf("unexpected first line: %v", lines[0])
	}
	if lines[1][FieldComponent] != ComponentStorage {
		t.Errorf("unexpected second line: %v", lines[1])
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Component: ComponentHTTP, Output: &buf})

	handler := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req_abc" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "inside")
		})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/imports", nil))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0][FieldRequestID] != "req_abc" {
		t.Errorf("request id missing: %v", lines)
	}
}

func TestFromContextDefault(t *testing.T) {
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Errorf("component = %q", got.Component())
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf}))
	ctx := context.Background()

	sl.LogImportCommitted(ctx, "imp-1", "u1", "신한카드", 3, 1, 2)
	sl.LogHTTPStart(ctx, httptest.NewRequest(http.MethodGet, "/healthz", nil), "10.0.0.1")
	sl.LogHTTPEnd(ctx, httptest.NewRequest(http.MethodPost, "/api/imports/commit", nil), 422, 12, "10.0.0.1")
	sl.LogError(ctx, "boom", errors.New("bad"), ComponentStorage, OpCommit, nil)

	lines := decodeLines(t, &buf)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if lines[1][FieldPath] != "/healthz" || lines[1]["level"] != "DEBUG" {
		t.Errorf("unexpected start line: %v", lines[1])
	}
	lines = append(lines[:1], lines[2:]...)
	if lines[0][FieldImportFileID] != "imp-1" || lines[0][FieldImported] != float64(3) || lines[0][FieldDuplicatesSkipped] != float64(1) {
		t.Errorf("unexpected import line: %v", lines[0])
	}
	if lines[1]["level"] != "WARN" || lines[1][FieldStatusCode] != float64(422) {
		t.Errorf("unexpected http line: %v", lines[1])
	}
	if lines[2][FieldError] != "bad" || lines[2][FieldComponent] != ComponentStorage {
		t.Errorf("unexpected error line: %v", lines[2])
	}
}
