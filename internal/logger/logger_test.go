package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter_WritesJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	l.Warn().Str("column", "address").Msg("could not parse")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "warn" {
		t.Fatalf("level=%v, want warn", entry["level"])
	}
	if entry["column"] != "address" {
		t.Fatalf("column=%v, want address", entry["column"])
	}
	if _, ok := entry["time"]; !ok {
		t.Fatalf("expected timestamp field, got %v", entry)
	}
}

func TestNew_RespectsLevelAndFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf, Options{Level: "warn", Format: "json"})
	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	l.Error().Msg("shown")
	if buf.Len() == 0 {
		t.Fatalf("expected error line")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" warn ", zerolog.WarnLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	ctx := WithContext(context.Background(), l)

	got := FromContext(ctx)
	got.Info().Msg("hello")
	if buf.Len() == 0 {
		t.Fatalf("expected logger from context to write to buffer")
	}

	// Missing logger falls back to a disabled one rather than panicking.
	nop := FromContext(context.Background())
	nop.Info().Msg("dropped")
}
