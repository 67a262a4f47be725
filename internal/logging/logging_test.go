package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewBuildsJSONLoggerAtRequestedLevel(t *testing.T) {
	log, err := New("debug", FormatJSON)
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewFallsBackToInfoOnUnrecognizedLevel(t *testing.T) {
	log, err := New("not-a-level", FormatJSON)
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewConsoleFormat(t *testing.T) {
	log, err := New("info", FormatConsole)
	require.NoError(t, err)
	require.NotNil(t, log)
}
