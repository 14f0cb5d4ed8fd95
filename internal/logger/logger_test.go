package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

// serve uses the JSON handler; every record must carry the message, the
// level, and the structured attrs the handlers attach.
func TestJSONRecordShape(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("operator loaded", "operator", "fc1", "kind", "linear")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("record is not valid JSON: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "operator loaded" {
		t.Fatalf("msg = %v, want %q", rec["msg"], "operator loaded")
	}
	if rec["level"] != "INFO" {
		t.Fatalf("level = %v, want INFO", rec["level"])
	}
	if rec["operator"] != "fc1" || rec["kind"] != "linear" {
		t.Fatalf("attrs not carried: %v", rec)
	}
}

func TestJSONDropsRecordsBelowLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)

	log.Debug("requantizing", "scale", 0.5)
	log.Info("forward pass done")
	if buf.Len() > 0 {
		t.Fatalf("info/debug leaked through warn level: %s", buf.String())
	}

	log.Warn("input scale changed", "scale", 0.25)
	if !strings.Contains(buf.String(), "input scale changed") {
		t.Fatalf("warn record missing: %s", buf.String())
	}
}

func TestWithCarriesAttrsToChildren(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo).With("operator", "conv1")
	log.Info("prepack complete")

	out := buf.String()
	if !strings.Contains(out, `"operator":"conv1"`) {
		t.Fatalf("child attr missing: %s", out)
	}
	if !strings.Contains(out, "prepack complete") {
		t.Fatalf("message missing: %s", out)
	}
}

// The CLI Before hook stashes the logger in the command context; every
// subcommand pulls it back out with FromContext.
func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("serving", "addr", ":8080")
	if !strings.Contains(buf.String(), "serving") {
		t.Fatalf("context logger lost the record: %s", buf.String())
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	t.Parallel()
	log := FromContext(context.Background())
	if log == nil {
		t.Fatal("FromContext returned nil for a bare context")
	}
	log.Info("fallback logger is usable")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
		{"WARN", slog.LevelInfo}, // levels are lowercase only
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPrettyFormatsRecordLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug)
	log.Info("packed weights", "path", "fc1.pwf", "channels", 64)

	out := buf.String()
	for _, want := range []string{"INFO", "packed weights", "path=fc1.pwf", "channels=64"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in pretty line: %s", want, out)
		}
	}

	buf.Reset()
	log.Debug("tap skipped")
	if !strings.Contains(buf.String(), "DEBUG") {
		t.Fatalf("debug record missing at debug level: %s", buf.String())
	}
}

func TestPrettyQuoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"plain", "fc1.pwf", `path=fc1.pwf`},
		{"space", "my model.pwf", `path="my model.pwf"`},
		{"tab", "a\tb", "path=\"a\tb\""},
		{"quote", `say "hi"`, `path="say "hi""`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := Pretty(&buf, slog.LevelInfo)
			log.Info("inspecting", "path", tc.value)
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("want %q in output: %s", tc.want, buf.String())
			}
		})
	}
}

func TestPrettyHandlerLevelGate(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	ctx := context.Background()

	if h.Enabled(ctx, slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}
	if !h.Enabled(ctx, slog.LevelWarn) || !h.Enabled(ctx, slog.LevelError) {
		t.Error("warn/error disabled at warn level")
	}
}

func TestPrettyHandlerGroupsPrefixKeys(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo).WithGroup("bench").WithGroup("run")
	log.Info("iteration done", "elapsed_ms", "12")

	if !strings.Contains(buf.String(), "bench.run.elapsed_ms=12") {
		t.Fatalf("group prefix missing: %s", buf.String())
	}
}

func TestPrettyHandlerEmptyGroupIsNoop(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, nil)
	if h.WithGroup("") != slog.Handler(h) {
		t.Fatal("WithGroup(\"\") should return the receiver")
	}
}

func TestPrettyHandlerWithAttrsAccumulates(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil).
		WithAttrs([]slog.Attr{slog.String("operator", "conv1")})
	slog.New(h).Info("running", "batch", 2)

	out := buf.String()
	if !strings.Contains(out, "operator=conv1") || !strings.Contains(out, "batch=2") {
		t.Fatalf("handler attrs missing: %s", out)
	}
}

func TestDefaultLoggerIsUsable(t *testing.T) {
	t.Parallel()
	log := Default()
	if log == nil {
		t.Fatal("Default returned nil")
	}
	log.Debug("suppressed at default level")
	log.Info("stderr record")
}
