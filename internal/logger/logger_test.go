package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "bogus", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Fatalf("ParseLevel(%q)=%v want %v", tt.in, got, tt.want)
		}
	}
}

func TestPrettyHandlerFormatsAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug).With("kernel", "layernorm").WithGroup("grid")
	log.Info("launch done", "blocks", 6, "order", "shuffled order")

	out := buf.String()
	for _, want := range []string{"INFO", "launch done", "kernel=layernorm", "grid.blocks=6", `grid.order="shuffled order"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestPrettyHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelWarn)
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestForFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	ForFormat("json", &buf, slog.LevelInfo).Info("hello", "n", 1)
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"n":1`) {
		t.Fatalf("not json: %q", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	log := Discard()
	ctx := WithContext(context.Background(), log)
	if FromContext(ctx) != log {
		t.Fatalf("logger not returned from context")
	}
	if FromContext(context.Background()) == nil {
		t.Fatalf("expected default logger")
	}
}

func TestForLauncherGroupsSchedule(t *testing.T) {
	var buf bytes.Buffer
	log := ForLauncher(New(slog.NewTextHandler(&buf, nil)), 64, "concurrent", "interleaved")
	log.Info("launch done", "blocks", 12)

	out := buf.String()
	for _, want := range []string{"grid.block_size=64", "grid.lanes=concurrent", "grid.order=interleaved", "grid.blocks=12"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestForKernelAttrs(t *testing.T) {
	var buf bytes.Buffer
	ForKernel(JSON(&buf, slog.LevelDebug), "matmul", 3).Debug("kernel finished")
	if !strings.Contains(buf.String(), `"kernel":"matmul"`) || !strings.Contains(buf.String(), `"blocks":3`) {
		t.Fatalf("missing kernel attrs: %q", buf.String())
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	// Scoping helpers accept a nil logger.
	ForLauncher(nil, 128, "serial", "parallel").Error("dropped")
	ForKernel(nil, "layernorm", 1).Info("dropped")

	log := Discard()
	if OrDiscard(log) != log {
		t.Fatal("OrDiscard replaced a non-nil logger")
	}
}
