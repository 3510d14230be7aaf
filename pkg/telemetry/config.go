package telemetry

import "fmt"

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, fatal).
	Level string

	// Format specifies the log format (console, json).
	Format string

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool

	// EnableSampling enables log sampling for high-frequency logs.
	EnableSampling bool

	// SamplingInitial is the number of messages logged per second initially.
	SamplingInitial int

	// SamplingThereafter logs every Nth message after the initial sample.
	SamplingThereafter int

	// TimeFormat specifies the timestamp format (unix, rfc3339, etc.).
	TimeFormat string
}

// DefaultLoggingConfig returns the logging configuration used when no
// overrides are given: human-readable console output at info level.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:              "info",
		Format:             "console",
		Output:             "stderr",
		EnableCaller:       false,
		EnableSampling:     false,
		SamplingInitial:    100,
		SamplingThereafter: 100,
		TimeFormat:         "rfc3339",
	}
}

// Validate checks if the configuration is valid.
func (c LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}

	if c.Format != "console" && c.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Format)
	}

	return nil
}
