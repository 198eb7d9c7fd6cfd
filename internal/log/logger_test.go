package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Level(t *testing.T) {
	restore := zap.L()
	defer zap.ReplaceGlobals(restore)

	logger := NewLogger(false)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.Same(t, logger, zap.L())

	debug := NewLogger(true)
	assert.True(t, debug.Core().Enabled(zapcore.DebugLevel))
}
