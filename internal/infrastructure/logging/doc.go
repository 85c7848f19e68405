// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON lines on stderr
//   - Development: colored console output
//
// Every probe run gets a child logger via ForRun carrying the plugin id and
// run id, and plugin-authored log.* calls are written through it.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	runLog := logger.ForRun("cursor", id.NewRunID())
//	runLog.Info("probe started", zap.Duration("timeout", 10*time.Second))
package logging
