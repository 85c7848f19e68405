package bridge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
)

func TestLogLevelsAndTruncation(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := &Log{logger: logging.Wrap(zap.New(core))}

	sink.Log(LevelWarn, "sqlite read failed")
	sink.Log(LevelError, "bad")
	sink.Log(Level("other"), "defaults to info")
	sink.Log(LevelInfo, strings.Repeat("x", maxLogMessage+10))

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "sqlite read failed", entries[0].Message)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, zap.InfoLevel, entries[2].Level)
	assert.Len(t, entries[3].Message, maxLogMessage)
	assert.Equal(t, true, entries[3].ContextMap()["truncated"])
}
