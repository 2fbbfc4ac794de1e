package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level LogLevel, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewLogger(Config{
		Level:  level,
		Output: &buf,
		Format: format,
	})
	require.NoError(t, err)
	return logger, &buf
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level      LogLevel
		debugShown bool
		infoShown  bool
	}{
		{LogLevelQuiet, false, false},
		{LogLevelNormal, false, true},
		{LogLevelVerbose, true, true},
		{LogLevelDebug, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			logger, buf := newBufferLogger(t, tt.level, "text")

			logger.Debug("debug message")
			assert.Equal(t, tt.debugShown, bytes.Contains(buf.Bytes(), []byte("debug message")))

			logger.Info("info message")
			assert.Equal(t, tt.infoShown, bytes.Contains(buf.Bytes(), []byte("info message")))

			logger.Error("error message")
			assert.Contains(t, buf.String(), "error message")
		})
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "json")

	logger.WithFields(map[string]interface{}{"file": "Amazon.d2s"}).Info("Backup created")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Backup created", entry["msg"])
	assert.Equal(t, "Amazon.d2s", entry["file"])
}

func TestLogBackupOperation(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "text")

	logger.LogBackupOperation("Amazon.d2s", "manual", true, 15*time.Millisecond, nil)
	assert.Contains(t, buf.String(), "Backup created")
	assert.Contains(t, buf.String(), "Amazon.d2s")

	buf.Reset()
	logger.LogBackupOperation("Amazon.d2s", "periodic", false, time.Millisecond, errors.New("file is busy"))
	assert.Contains(t, buf.String(), "Backup failed")
	assert.Contains(t, buf.String(), "file is busy")
}

func TestLogRestoreOperation(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "text")

	logger.LogRestoreOperation("Amazon.d2s_20251002_082801.d2s", "/saves/Amazon.d2s", true, time.Millisecond, nil)
	assert.Contains(t, buf.String(), "Restore completed")
}

func TestLogRetentionCleanup(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "text")

	// Nothing evicted logs at debug, invisible at normal level.
	logger.LogRetentionCleanup("Amazon.d2s", 0, 3)
	assert.Empty(t, buf.String())

	logger.LogRetentionCleanup("Amazon.d2s", 2, 10)
	assert.Contains(t, buf.String(), "Retention cap applied")
}

func TestSetLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "text")

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.SetLevel(LogLevelDebug)
	assert.Equal(t, LogLevelDebug, logger.GetLevel())
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestLogOperationStart(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "text")

	finish := logger.LogOperationStart("backup", map[string]interface{}{"file": "Amazon.d2s"})
	finish(nil)
	assert.Contains(t, buf.String(), "Operation completed")

	buf.Reset()
	finish = logger.LogOperationStart("backup", nil)
	finish(errors.New("boom"))
	assert.Contains(t, buf.String(), "Operation failed")
	assert.Contains(t, buf.String(), "boom")
}
