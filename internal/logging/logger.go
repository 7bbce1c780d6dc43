package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "IOP_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks the IOP_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	return InitializeWithFile(level, "")
}

// InitializeWithFile is Initialize with an optional rotating log file.
// When filePath is non-empty, log output goes to that file with size-based
// rotation instead of stdout. Useful on POSIX hosts where the device log
// must survive restarts.
func InitializeWithFile(level, filePath string) error {
	// If no level provided, check environment variable
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	// If still no level, use silent mode (nop logger)
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		// Unknown level - use info as default when explicitly set to something
		zapLevel = zapcore.InfoLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	if filePath != "" {
		// Rotating file sink; 5 MB per file, 3 backups
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    5,
			MaxBackups: 3,
		})
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), sink, zapLevel)
		logger = zap.New(core)
		return nil
	}

	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	var err error
	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// InitializeFromEnv initializes the logger from the IOP_LOG_LEVEL
// environment variable. This is the recommended way to initialize logging
// for host firmware that wants silent mode by default.
func InitializeFromEnv() error {
	return Initialize("")
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback to silent logger if not initialized
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogRadioEvent logs a WiFi radio state transition
func LogRadioEvent(event string, fields ...zap.Field) {
	Info("Radio event",
		append([]zap.Field{zap.String("event", event)}, fields...)...,
	)
}

// LogPortalRequest logs an intercepted captive-portal HTTP request
func LogPortalRequest(remoteAddr string, host string, path string, redirected bool) {
	Debug("Portal request",
		zap.String("remote_addr", remoteAddr),
		zap.String("host", host),
		zap.String("path", path),
		zap.Bool("redirected", redirected),
	)
}

// LogUpgradeProgress logs firmware transfer progress
func LogUpgradeProgress(received int64, total int64) {
	Debug("Upgrade transfer progress",
		zap.Int64("bytes_received", received),
		zap.Int64("total_bytes", total),
	)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
