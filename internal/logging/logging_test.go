package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message should be filtered: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn message missing: %s", out)
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(Config{Level: "debug"}, &buf), "engine")
	logger.Debug().Msg("hello")

	if !strings.Contains(buf.String(), `"component":"engine"`) {
		t.Fatalf("component field missing: %s", buf.String())
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	logger := New(Config{Level: "chatty"}, &bytes.Buffer{})
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %s", logger.GetLevel())
	}
}
