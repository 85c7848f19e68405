package bridge

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
)

const maxLogMessage = 4 << 10

// Level of a plugin log message.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// LogSink is the log capability. It never fails.
type LogSink interface {
	Log(level Level, message string)
}

// Log writes plugin messages to the run's logger.
type Log struct {
	logger *logging.Logger
}

var _ LogSink = (*Log)(nil)

// Log bypasses the executor; ordering against other calls is irrelevant
// for a diagnostic sink.
func (l *Log) Log(level Level, message string) {
	truncated := false
	if len(message) > maxLogMessage {
		message = message[:maxLogMessage]
		truncated = true
	}
	fields := []zap.Field{zap.String("source", "plugin")}
	if truncated {
		fields = append(fields, zap.Bool("truncated", true))
	}

	switch level {
	case LevelError:
		l.logger.Error(message, fields...)
	case LevelWarn:
		l.logger.Warn(message, fields...)
	default:
		l.logger.Info(message, fields...)
	}
}
