package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/Strob0t/LoopForge/internal/config"
)

func TestNewVariants(t *testing.T) {
	for _, cfg := range []config.Logging{
		{Level: "debug", Service: "test-svc"},
		{Level: "debug", Service: "test-svc", Async: true},
	} {
		l, closer := New(cfg)
		if l == nil {
			t.Fatalf("New(%+v) returned nil logger", cfg)
		}
		closer.Close()
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(&buf, config.Logging{Level: "info", Format: "json", Service: "loopforge"})
	defer closer.Close()

	l.Info("cycle complete", "cycle", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if record["service"] != "loopforge" {
		t.Errorf("service attr = %v, want loopforge", record["service"])
	}
	if record["msg"] != "cycle complete" {
		t.Errorf("msg = %v", record["msg"])
	}
}

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(&buf, config.Logging{Level: "info", Format: "text", Service: "loopforge"})
	defer closer.Close()

	l.Info("hello")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Errorf("expected text output, got %q", out)
	}
	if !strings.Contains(out, "service=loopforge") {
		t.Errorf("expected service attr in %q", out)
	}
}

func TestNewWithWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(&buf, config.Logging{Level: "error", Format: "json", Service: "x"})
	defer closer.Close()

	l.Info("quiet")
	if buf.Len() != 0 {
		t.Errorf("info record emitted at error level: %s", buf.String())
	}
	l.Error("loud")
	if buf.Len() == 0 {
		t.Error("error record suppressed")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.raw); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("missing ID should read as empty, got %q", got)
	}

	ctx := WithRequestID(context.Background(), "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("RequestID = %q, want req-123", got)
	}

	ctx = WithRequestID(ctx, "req-456")
	if got := RequestID(ctx); got != "req-456" {
		t.Errorf("after overwrite RequestID = %q, want req-456", got)
	}
}
