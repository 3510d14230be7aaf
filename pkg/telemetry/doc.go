// Package telemetry provides structured logging for the loom pipeline.
//
// Logging is built on zerolog. A Logger is created once at startup and
// handed down to components as child loggers carrying component and run
// identifiers.
//
// # Usage
//
// Initialize logging at application startup:
//
//	logger, err := telemetry.NewLogger(telemetry.DefaultLoggingConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Create component-specific loggers with contextual fields:
//
//	logger = logger.NewComponentLogger("executor")
//	logger = logger.WithRunID("run-123").WithUpdateID("update-042")
//	logger.Info("starting plan run")
//	logger.WithError(err).Error("plan run failed")
//
// Log levels: trace, debug, info, warn, error, fatal.
//
// The logger travels through command contexts:
//
//	ctx = logger.WithContext(ctx)
//	exec := executor.New(executor.Options{Logger: telemetry.FromContext(ctx)})
package telemetry
