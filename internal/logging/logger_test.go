package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewLoggerWithWriter_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		fn       func(*slog.Logger)
		contains []string
		excludes []string
	}{
		{
			name:     "debug shows at debug level",
			level:    "debug",
			fn:       func(l *slog.Logger) { l.Debug("debug message") },
			contains: []string{"debug message", `"level":"DEBUG"`},
		},
		{
			name:     "debug hidden at info level",
			level:    "info",
			fn:       func(l *slog.Logger) { l.Debug("debug message") },
			excludes: []string{"debug message"},
		},
		{
			name:     "warn shows at info level",
			level:    "info",
			fn:       func(l *slog.Logger) { l.Warn("warn message") },
			contains: []string{"warn message", `"level":"WARN"`},
		},
		{
			name:     "info hidden at error level",
			level:    "error",
			fn:       func(l *slog.Logger) { l.Info("info message") },
			excludes: []string{"info message"},
		},
		{
			name:     "unknown level falls back to info",
			level:    "verbose",
			fn:       func(l *slog.Logger) { l.Info("info message"); l.Debug("debug message") },
			contains: []string{"info message"},
			excludes: []string{"debug message"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.fn(NewLoggerWithWriter(&buf, tt.level, "json"))

			out := buf.String()
			for _, s := range tt.contains {
				if !strings.Contains(out, s) {
					t.Errorf("output %q does not contain %q", out, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(out, s) {
					t.Errorf("output %q should not contain %q", out, s)
				}
			}
		})
	}
}

func TestNewLoggerWithWriter_Formats(t *testing.T) {
	var jsonBuf bytes.Buffer
	NewLoggerWithWriter(&jsonBuf, "info", "json").Info("dispatch", "request_type", "ping")

	var entry map[string]interface{}
	if err := json.Unmarshal(jsonBuf.Bytes(), &entry); err != nil {
		t.Fatalf("json output is not valid JSON: %v", err)
	}
	if entry["request_type"] != "ping" {
		t.Errorf("request_type = %v, want ping", entry["request_type"])
	}

	var textBuf bytes.Buffer
	NewLoggerWithWriter(&textBuf, "info", "text").Info("dispatch", "request_type", "ping")
	if !strings.Contains(textBuf.String(), "request_type=ping") {
		t.Errorf("text output = %q", textBuf.String())
	}

	var devBuf bytes.Buffer
	NewLoggerWithWriter(&devBuf, "info", "dev").Info("dispatch")
	if !strings.Contains(devBuf.String(), "source=") {
		t.Errorf("dev output should include the source location: %q", devBuf.String())
	}
}

func TestContextLogger(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("FromContext() without a logger should return slog.Default()")
	}

	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "info", "json").With("request_id", "abc")
	ctx := WithLogger(context.Background(), logger)

	FromContext(ctx).Info("handled")
	if !strings.Contains(buf.String(), `"request_id":"abc"`) {
		t.Errorf("context logger lost its fields: %q", buf.String())
	}
}

func TestLogResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewLogResponseWriter(rec)

	if w.StatusCode() != http.StatusOK {
		t.Errorf("default StatusCode() = %d, want %d", w.StatusCode(), http.StatusOK)
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("hello"))
	_, _ = w.Write([]byte(" world"))
	w.Flush()

	if w.StatusCode() != http.StatusAccepted {
		t.Errorf("StatusCode() = %d, want %d", w.StatusCode(), http.StatusAccepted)
	}
	if w.Size() != len("hello world") {
		t.Errorf("Size() = %d, want %d", w.Size(), len("hello world"))
	}
	if !rec.Flushed {
		t.Error("Flush() was not forwarded to the wrapped writer")
	}
	if w.Unwrap() != rec {
		t.Error("Unwrap() should return the wrapped writer")
	}
}
