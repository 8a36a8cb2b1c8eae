package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func plain(buf *bytes.Buffer, level slog.Level) Logger {
	return New(NewPrettyHandler(buf, &PrettyOptions{Level: level, NoColor: true}))
}

func TestDefault(t *testing.T) {
	t.Parallel()
	log := Default()
	if log == nil {
		t.Fatal("Default() returned nil")
	}
	log.Info("test message")
	log.Debug("debug message")
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.Error("dropped", "key", "value")
	if log.Enabled(slog.LevelError) {
		t.Fatal("discard logger should not be enabled")
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("hello", "key", "value")

	output := buf.String()
	for _, want := range []string{"hello", `"key":"value"`, `"level":"INFO"`} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %s in output, got: %s", want, output)
		}
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")
	if buf.Len() > 0 {
		t.Fatalf("expected no output for info/debug at warn level, got: %s", buf.String())
	}
	log.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn message in output, got: %s", buf.String())
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := FromConfig(Config{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	log.Debug("dbg")
	if !strings.Contains(buf.String(), `"level":"DEBUG"`) {
		t.Fatalf("expected JSON debug output, got: %s", buf.String())
	}

	buf.Reset()
	log, err = FromConfig(Config{Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("FromConfig text: %v", err)
	}
	log.Info("txt", "k", "v")
	if !strings.Contains(buf.String(), "k=v") || !strings.Contains(buf.String(), "level=INFO") {
		t.Fatalf("expected text output, got: %s", buf.String())
	}

	if _, err := FromConfig(Config{Format: "xml"}, &buf); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := FromConfig(Config{Level: "loud"}, &buf); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext should fall back to Default")
	}
	var buf bytes.Buffer
	log := plain(&buf, slog.LevelInfo)
	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("from ctx")
	if !strings.Contains(buf.String(), "from ctx") {
		t.Fatalf("expected logger from context to be used, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevelStrict("bogus"); err == nil {
		t.Error("ParseLevelStrict should reject unknown levels")
	}
}

func TestPrettyLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := plain(&buf, slog.LevelDebug)
	log.Debug("step", "seen", 3, "took", 2*time.Millisecond, "msg", "hello world", "key", "simple")

	out := buf.String()
	for _, want := range []string{"DEBUG step", "seen=3", "took=2ms", `msg="hello world"`, "key=simple"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Fatalf("NoColor output contains escape codes: %q", out)
	}
}

func TestPrettyColor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	slog.New(NewPrettyHandler(&buf, nil)).Warn("careful")
	if !strings.Contains(buf.String(), colorYellow) {
		t.Fatalf("expected warn colour in %q", buf.String())
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &PrettyOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
}

func TestPrettyGroupsAndAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := plain(&buf, slog.LevelInfo).With("service", "quill").WithGroup("session").With("id", "abc").WithGroup("step")
	log.Info("grouped", "n", 1)

	out := buf.String()
	for _, want := range []string{"service=quill", "session.id=abc", "session.step.n=1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
	if strings.Contains(out, "session.session") {
		t.Fatalf("group applied twice: %q", out)
	}
}

func TestPrettyInlineGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	slog.New(NewPrettyHandler(&buf, &PrettyOptions{NoColor: true})).Info("g", slog.Group("req", "method", "GET"))
	if !strings.Contains(buf.String(), "req.method=GET") {
		t.Fatalf("expected flattened group, got %q", buf.String())
	}
}

func TestPrettyHandlerEmptyGroup(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, nil)
	if h.WithGroup("") != slog.Handler(h) {
		t.Fatal("WithGroup empty string should return same handler")
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected bool
	}{
		{"simple", false},
		{"has space", true},
		{"has\ttab", true},
		{`has"quote`, true},
		{"a=b", true},
		{"", false},
	}
	for _, tc := range tests {
		if got := needsQuoting(tc.input); got != tc.expected {
			t.Errorf("needsQuoting(%q): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}
