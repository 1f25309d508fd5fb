package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kyleking/sql-agent/internal/config"
)

const (
	logDirPerm  = 0755
	logFilePerm = 0644
)

// Logger is a structured logger backed by log/slog. Derived loggers share
// the underlying handler and file.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

var (
	globalMu     sync.RWMutex
	globalLogger = Discard()
)

// InitializeLogger replaces the global logger using the given configuration
func InitializeLogger(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}

	SetLogger(logger)

	return nil
}

// SetLogger replaces the global logger
func SetLogger(logger *Logger) {
	if logger == nil {
		logger = Discard()
	}

	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// NewLogger creates a logger writing to the configured output
func NewLogger(cfg config.LoggingConfig) (*Logger, error) {
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		return NewWithWriter(cfg, os.Stdout), nil
	case "stderr", "":
		return NewWithWriter(cfg, os.Stderr), nil
	case "file":
		if cfg.File == "" {
			return nil, errors.New("log file path is required when output is 'file'")
		}

		path := config.ExpandPath(cfg.File)
		if err := os.MkdirAll(filepath.Dir(path), logDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		logger := NewWithWriter(cfg, file)
		logger.file = file

		return logger, nil
	default:
		return nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}
}

// NewWithWriter creates a logger that writes to w using the configured level and format
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{slog: slog.New(handler)}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel converts a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Slog exposes the underlying slog logger
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level slog.Level) bool {
	return l.slog.Enabled(context.Background(), level)
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{slog: l.slog.With(slog.Any(key, value)), file: l.file}
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]any, 0, len(fields))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}

	return &Logger{slog: l.slog.With(args...), file: l.file}
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(message string) { l.slog.Debug(message) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.Enabled(slog.LevelDebug) {
		l.slog.Debug(fmt.Sprintf(format, args...))
	}
}

func (l *Logger) Info(message string) { l.slog.Info(message) }

func (l *Logger) Infof(format string, args ...interface{}) {
	l.slog.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(message string) { l.slog.Warn(message) }

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.slog.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(message string) { l.slog.Error(message) }

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.slog.Error(fmt.Sprintf(format, args...))
}

// ErrorWithErr logs an error message with an associated error
func (l *Logger) ErrorWithErr(message string, err error) {
	if err == nil {
		l.slog.Error(message)
		return
	}

	l.slog.Error(message, slog.String("error", err.Error()))
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}

	return nil
}

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	return globalLogger
}

// SetupFallbackLogger installs an info-level text logger on stderr for use
// when configuration could not be loaded
func SetupFallbackLogger() {
	SetLogger(NewWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, os.Stderr))
}

// Debug logs a debug message using the global logger
func Debug(message string) {
	GetLogger().Debug(message)
}

// Debugf logs a formatted debug message using the global logger
func Debugf(format string, args ...interface{}) {
	GetLogger().Debugf(format, args...)
}

// Info logs an info message using the global logger
func Info(message string) {
	GetLogger().Info(message)
}

// Infof logs a formatted info message using the global logger
func Infof(format string, args ...interface{}) {
	GetLogger().Infof(format, args...)
}

// Warn logs a warning message using the global logger
func Warn(message string) {
	GetLogger().Warn(message)
}

// Warnf logs a formatted warning message using the global logger
func Warnf(format string, args ...interface{}) {
	GetLogger().Warnf(format, args...)
}

// Error logs an error message using the global logger
func Error(message string) {
	GetLogger().Error(message)
}

// Errorf logs a formatted error message using the global logger
func Errorf(format string, args ...interface{}) {
	GetLogger().Errorf(format, args...)
}

// ErrorWithErr logs an error message with an associated error using the global logger
func ErrorWithErr(message string, err error) {
	GetLogger().ErrorWithErr(message, err)
}

// WithField adds a field to the global logger context
func WithField(key string, value interface{}) *Logger {
	return GetLogger().WithField(key, value)
}

// WithFields adds multiple fields to the global logger context
func WithFields(fields map[string]interface{}) *Logger {
	return GetLogger().WithFields(fields)
}

// WithError adds an error to the global logger context
func WithError(err error) *Logger {
	return GetLogger().WithError(err)
}

// LoggerMiddleware wraps fn with start/finish logging and its duration
func LoggerMiddleware(operation string, fn func() error) error {
	logger := WithField("operation", operation)
	logger.Debug("Starting operation")

	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		logger.WithField("duration", duration.String()).ErrorWithErr("Operation failed", err)
	} else {
		logger.WithField("duration", duration.String()).Debug("Operation completed successfully")
	}

	return err
}
