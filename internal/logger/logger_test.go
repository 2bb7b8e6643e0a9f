package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("run_id", "r1").Msg("import started")

	output := buf.String()
	if !strings.Contains(output, "import started") || !strings.Contains(output, `"run_id":"r1"`) {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithLevel(t *testing.T) {
	if got := NewWithLevel("warn").GetLevel(); got != zerolog.WarnLevel {
		t.Errorf("level = %v, want warn", got)
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)

	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())

	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"job_id": "123",
		"format": "delimited",
	})

	log.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, `"job_id":"123"`) || !strings.Contains(output, `"format":"delimited"`) {
		t.Errorf("Expected output to contain fields, got: %s", output)
	}
}
