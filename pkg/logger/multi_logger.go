package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryFetch    LogCategory = "fetch"    // Format listing events (JSON)
	CategoryDownload LogCategory = "download" // Download events and raw yt-dlp output (JSON)
	CategoryError    LogCategory = "error"    // Failures from any operation (JSON)
)

// Categories lists every category with its own log file
var Categories = []LogCategory{CategoryFetch, CategoryDownload, CategoryError}

// ValidCategory reports whether c names a known category
func ValidCategory(c LogCategory) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// MultiLogger writes one JSON log file per category and day
type MultiLogger struct {
	config      MultiLoggerConfig
	level       zapcore.Level
	mu          sync.RWMutex
	loggers     map[LogCategory]*zap.Logger
	files       []*os.File
	currentDate string
	now         func() time.Time
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}
	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{
		config: config,
		level:  parseLevel(config.Level, zapcore.InfoLevel),
		now:    time.Now,
	}
	if err := ml.open(ml.now().Format("20060102")); err != nil {
		return nil, err
	}
	return ml, nil
}

// open creates the category loggers for date. Callers hold mu or own ml.
func (ml *MultiLogger) open(date string) error {
	loggers := make(map[LogCategory]*zap.Logger, len(Categories))
	var files []*os.File
	for _, category := range Categories {
		level := ml.level
		if category == CategoryError {
			level = zapcore.WarnLevel
		}
		logger, file, err := ml.createStructuredLogger(category, date, level)
		if err != nil {
			for _, f := range files {
				f.Close()
			}
			return fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		loggers[category] = logger
		files = append(files, file)
	}

	ml.closeFiles()
	ml.loggers = loggers
	ml.files = files
	ml.currentDate = date
	return nil
}

// createStructuredLogger creates a JSON-formatted logger for a category
func (ml *MultiLogger) createStructuredLogger(category LogCategory, date string, level zapcore.Level) (*zap.Logger, *os.File, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""

	logPath := CategoryLogPath(ml.config.LogsDir, category, date)
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level)
	return zap.New(core).With(zap.String("category", string(category))), file, nil
}

// CategoryLogPath returns the file a category logs to on a given day (YYYYMMDD)
func CategoryLogPath(logsDir string, category LogCategory, date string) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s-%s.log", category, date))
}

// GetLogger returns the logger for a category, rolling files over at midnight
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	today := ml.now().Format("20060102")

	ml.mu.RLock()
	logger, ok := ml.loggers[category]
	current := ml.currentDate
	ml.mu.RUnlock()

	if current != today {
		ml.mu.Lock()
		if ml.currentDate != today {
			if err := ml.open(today); err != nil {
				fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
			}
		}
		logger, ok = ml.loggers[category]
		ml.mu.Unlock()
	}

	if !ok || logger == nil {
		ml.mu.RLock()
		defer ml.mu.RUnlock()
		if fallback := ml.loggers[CategoryError]; fallback != nil {
			return fallback
		}
		return zap.NewNop()
	}
	return logger
}

// Error returns the error logger (JSON format)
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// Log writes msg to a category at the given level. Warnings and errors are
// also copied to the error category.
func (ml *MultiLogger) Log(category LogCategory, level zapcore.Level, msg string, fields ...zap.Field) {
	if ce := ml.GetLogger(category).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
	if category != CategoryError && level >= zapcore.WarnLevel {
		if ce := ml.Error().Check(level, msg); ce != nil {
			ce.Write(append(fields, zap.String("source", string(category)))...)
		}
	}
}

// LogAppError logs an application-level error (Go errors, panics)
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes all loggers and closes their files
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}
	if err := ml.closeFiles(); err != nil {
		lastErr = err
	}
	ml.loggers = map[LogCategory]*zap.Logger{}
	return lastErr
}

func (ml *MultiLogger) closeFiles() error {
	var lastErr error
	for _, f := range ml.files {
		if err := f.Close(); err != nil {
			lastErr = err
		}
	}
	ml.files = nil
	return lastErr
}
