package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging_NewLogger(t *testing.T) {
	t.Parallel()
	logger := NewLogger("test-component")

	assert.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestLogging_GetLogger(t *testing.T) {
	t.Parallel()
	logger1 := GetLogger("engine")
	logger2 := GetLogger("engine")

	assert.NotNil(t, logger1)
	assert.NotNil(t, logger2)
	assert.Equal(t, logger1, logger2)
}

func TestLogging_SetupLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *LoggingConfig
		wantErr bool
	}{
		{
			name: "valid console config",
			config: &LoggingConfig{
				Level:          "info",
				Format:         "text",
				ConsoleEnabled: true,
				FileEnabled:    false,
			},
			wantErr: false,
		},
		{
			name: "valid file config",
			config: &LoggingConfig{
				Level:          "debug",
				Format:         "json",
				ConsoleEnabled: false,
				FileEnabled:    true,
				FilePath:       "/tmp/test.log",
				MaxFileSize:    100,
				BackupCount:    5,
			},
			wantErr: false,
		},
		{
			name: "invalid log level falls back to info",
			config: &LoggingConfig{
				Level:          "invalid",
				ConsoleEnabled: true,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SetupLogging(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogging_CorrelationID(t *testing.T) {
	t.Parallel()

	correlationID := GenerateCorrelationID()
	assert.NotEmpty(t, correlationID)
	assert.Len(t, correlationID, 36)

	ctx := context.Background()
	ctxWithID := WithCorrelationID(ctx, correlationID)

	retrievedID := GetCorrelationIDFromContext(ctxWithID)
	assert.Equal(t, correlationID, retrievedID)

	emptyID := GetCorrelationIDFromContext(ctx)
	assert.Empty(t, emptyID)
}

func TestLogging_WithCorrelationID(t *testing.T) {
	t.Parallel()
	logger := NewLogger("test-component")
	loggerWithID := logger.WithCorrelationID("test-correlation-id")
	assert.NotNil(t, loggerWithID)
}

func TestLogging_WithField(t *testing.T) {
	t.Parallel()
	logger := NewLogger("test-component")
	loggerWithField := logger.WithField("test_key", "test_value")
	assert.NotNil(t, loggerWithField)
}

func TestLogging_WithError(t *testing.T) {
	t.Parallel()
	logger := NewLogger("test-component")
	loggerWithError := logger.WithError(assert.AnError)
	assert.NotNil(t, loggerWithError)
}

func TestLogging_LogWithContext(t *testing.T) {
	t.Parallel()
	logger := NewLogger("test-component")
	ctx := WithCorrelationID(context.Background(), "test-correlation-id")

	logger.LogWithContext(ctx, logrus.InfoLevel, "test message")
	logger.LogWithContext(context.Background(), logrus.InfoLevel, "test message without correlation")
}

func TestLogging_ConvenienceMethods(t *testing.T) {
	t.Parallel()
	logger := NewLogger("test-component")
	ctx := context.Background()

	logger.DebugWithContext(ctx, "debug message")
	logger.InfoWithContext(ctx, "info message")
	logger.WarnWithContext(ctx, "warn message")
	logger.ErrorWithContext(ctx, "error message")

	assert.NotNil(t, logger)
}

func TestLogging_LevelManagement(t *testing.T) {
	t.Parallel()
	logger := NewLogger("test-component")

	logger.SetLevel(logrus.DebugLevel)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.SetLevel(logrus.ErrorLevel)
	assert.Equal(t, logrus.ErrorLevel, logger.GetLevel())

	assert.True(t, logger.IsLevelEnabled(logrus.ErrorLevel))
	assert.True(t, logger.IsLevelEnabled(logrus.FatalLevel))
	assert.False(t, logger.IsLevelEnabled(logrus.InfoLevel))
}

func TestLogging_ComponentLevel(t *testing.T) {
	t.Parallel()
	logger := NewLogger("test-component")

	logger.SetComponentLevel("test-component", logrus.DebugLevel)

	effectiveLevel := logger.GetEffectiveLevel("test-component")
	assert.Equal(t, logrus.DebugLevel, effectiveLevel)

	assert.True(t, logger.IsLevelEnabled(logrus.DebugLevel))
	assert.True(t, logger.IsLevelEnabled(logrus.InfoLevel))
}

func TestLogging_SetupLoggingSimple(t *testing.T) {
	t.Parallel()
	err := SetupLoggingSimple("/tmp/test.log", "info")
	assert.NoError(t, err)
}

func TestLogging_FileRotation(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	logFilePath := filepath.Join(tempDir, "test.log")

	config := &LoggingConfig{
		Level:          "info",
		Format:         "text",
		ConsoleEnabled: false,
		FileEnabled:    true,
		FilePath:       logFilePath,
		MaxFileSize:    1,
		BackupCount:    3,
	}

	err = SetupLogging(config)
	require.NoError(t, err)

	logger := GetLogger("engine")
	for i := 0; i < 10; i++ {
		logger.Info("test log message that should trigger rotation")
	}

	time.Sleep(100 * time.Millisecond)

	_, err = os.Stat(logFilePath)
	assert.NoError(t, err, "log file should exist")
}

func TestLogging_FormatCompatibility(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"text format", "text"},
		{"json format", "json"},
		{"mixed format", "mixed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &LoggingConfig{
				Level:          "info",
				Format:         tt.format,
				ConsoleEnabled: true,
				FileEnabled:    false,
			}

			err := SetupLogging(config)
			assert.NoError(t, err)
		})
	}
}

func TestLogging_Concurrency(t *testing.T) {
	logger := NewLogger("test-component")

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			logger.Info("concurrent log message")
			logger.WithField("goroutine_id", fmt.Sprintf("%d", id)).Info("structured log message")
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	assert.NotNil(t, logger)
}

func TestLogging_ErrorHandling(t *testing.T) {
	config := &LoggingConfig{
		Level:          "info",
		Format:         "text",
		ConsoleEnabled: false,
		FileEnabled:    true,
		FilePath:       "/invalid/path/that/should/not/exist/test.log",
		MaxFileSize:    100,
		BackupCount:    5,
	}

	_ = SetupLogging(config)
	assert.NotNil(t, config)
}

func TestLogging_Performance(t *testing.T) {
	logger := NewLogger("test-component")

	start := time.Now()
	for i := 0; i < 1000; i++ {
		logger.Info("performance test message")
	}
	duration := time.Since(start)

	assert.Less(t, duration, time.Second, "logging 1000 messages should complete within 1 second")
}
