package app

import (
	"github.com/sridip-de/yt-dlp-gui/internal/domain"
	"github.com/sridip-de/yt-dlp-gui/pkg/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MirrorEvent writes ev to the slot's category log. Progress lines carrying
// a fraction are skipped; they are redrawn in place and say nothing new.
func MirrorEvent(ml *logger.MultiLogger, ev domain.Event) {
	if ml == nil {
		return
	}
	category := logger.LogCategory(ev.Slot)
	if !logger.ValidCategory(category) {
		category = logger.CategoryError
	}
	base := []zap.Field{zap.Uint64("seq", ev.Seq), zap.String("operation_id", ev.OperationID)}

	switch {
	case ev.Log != nil:
		fields := base
		for key, value := range ev.Log.Details {
			fields = append(fields, zap.String(key, value))
		}
		ml.Log(category, levelOf(ev.Log.Level), ev.Log.Message, fields...)

	case ev.Progress != nil:
		if !ev.Progress.HasFraction() && ev.Progress.RawLine != "" {
			ml.Log(category, zapcore.DebugLevel, ev.Progress.RawLine, base...)
		}

	case ev.Catalog != nil:
		fields := append(base,
			zap.String("url", ev.Catalog.URL),
			zap.String("outcome", string(ev.Catalog.Outcome)),
			zap.Int("formats", len(ev.Catalog.Formats)),
			zap.Bool("from_cache", ev.Catalog.FromCache))
		ml.Log(category, zapcore.InfoLevel, "Operation finished", withOpError(fields, ev.Catalog.Err)...)

	case ev.Download != nil:
		fields := append(base,
			zap.String("url", ev.Download.Request.URL),
			zap.String("outcome", string(ev.Download.Outcome)))
		ml.Log(category, zapcore.InfoLevel, "Operation finished", withOpError(fields, ev.Download.Err)...)
	}
}

func withOpError(fields []zap.Field, err *domain.OpError) []zap.Field {
	if err == nil {
		return fields
	}
	return append(fields,
		zap.String("error_kind", string(err.Kind)),
		zap.Int("exit_code", err.ExitCode),
		zap.String("error", err.Message))
}

func levelOf(level domain.Level) zapcore.Level {
	switch level {
	case domain.LevelDebug:
		return zapcore.DebugLevel
	case domain.LevelWarn:
		return zapcore.WarnLevel
	case domain.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
