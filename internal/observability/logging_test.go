package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger(DefaultLogConfig())
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Parallel()

	cfg := DefaultLogConfig()
	cfg.Level = "verbose"

	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	t.Parallel()

	cfg := DefaultLogConfig()
	cfg.Format = "console"
	cfg.Output = "stderr"

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NopLogger()
	logger.Debug("debug")
	logger.Info("info", String("key", "value"))
	logger.Warn("warn")
	logger.Error("error")

	assert.Equal(t, logger, logger.With(String("a", "b")))
	assert.NoError(t, logger.Sync())
}

func TestGlobalLogger(t *testing.T) {
	logger, err := NewLogger(DefaultLogConfig())
	require.NoError(t, err)

	SetGlobalLogger(logger)
	assert.Equal(t, logger, GetGlobalLogger())

	SetGlobalLogger(nil)
	assert.NotNil(t, GetGlobalLogger())
}
