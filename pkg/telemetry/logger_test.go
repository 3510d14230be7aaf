package telemetry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultLoggingConfigValid(t *testing.T) {
	if err := DefaultLoggingConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := DefaultLoggingConfig()
	cfg.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestValidateRejectsBadFormat(t *testing.T) {
	cfg := DefaultLoggingConfig()
	cfg.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"debug":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"fatal":   zerolog.FatalLevel,
		"unknown": zerolog.InfoLevel,
	}
	for input, want := range cases {
		if got := parseLogLevel(input); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	logger := NopLogger()
	if logger.Zerolog().GetLevel() != zerolog.Disabled {
		t.Errorf("unexpected level: %v", logger.Zerolog().GetLevel())
	}
	// Field helpers on a nop logger must stay usable.
	logger.WithRunID("run-1").WithOp(0, "write_file").Info("dropped")
}

func TestLoggerContextRoundTrip(t *testing.T) {
	logger := NopLogger().WithUpdateID("update-042")
	ctx := logger.WithContext(context.Background())
	if FromContext(ctx) != logger {
		t.Error("expected the logger stored in the context")
	}
	if FromContext(context.Background()) == nil {
		t.Error("expected a fallback logger for a bare context")
	}
}

func TestNewLoggerJSON(t *testing.T) {
	cfg := DefaultLoggingConfig()
	cfg.Format = "json"
	cfg.Output = "stderr"

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	child := logger.NewComponentLogger("composer").WithRunID("run-1")
	if child == nil {
		t.Fatal("expected child logger")
	}
	if child.Zerolog().GetLevel() != zerolog.InfoLevel {
		t.Errorf("unexpected level: %v", child.Zerolog().GetLevel())
	}
}
