package diagnostics

import "log/slog"

// LogSink emits diagnostic events through log/slog, matching the
// structured-logging idiom the rest of the engine uses.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink writing to logger, or slog.Default() if nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(e Event) {
	switch e.Level {
	case LevelDebug:
		s.logger.Debug(e.Message, "code", string(e.Code))
	case LevelInfo:
		s.logger.Info(e.Message, "code", string(e.Code))
	case LevelWarn:
		s.logger.Warn(e.Message, "code", string(e.Code))
	case LevelError:
		s.logger.Error(e.Message, "code", string(e.Code))
	default:
		s.logger.Info(e.Message, "code", string(e.Code), "level", e.Level.String())
	}
}
