package netq

// Logger provides structured logging hooks.
// Args are alternating key/value pairs.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...any)
	// Info logs an informational message.
	Info(msg string, args ...any)
	// Warn logs a warning message.
	Warn(msg string, args ...any)
	// Error logs an error message.
	Error(msg string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

// Debug implements Logger.
func (NopLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NopLogger) Info(string, ...any) {}

// Warn implements Logger.
func (NopLogger) Warn(string, ...any) {}

// Error implements Logger.
func (NopLogger) Error(string, ...any) {}

// LoggerWith returns a Logger that prepends the given key/value pairs to every entry.
func LoggerWith(logger Logger, args ...any) Logger {
	if logger == nil {
		return NopLogger{}
	}
	if len(args) == 0 {
		return logger
	}

	return boundLogger{next: logger, args: args}
}

type boundLogger struct {
	next Logger
	args []any
}

func (l boundLogger) Debug(msg string, args ...any) { l.next.Debug(msg, l.merge(args)...) }
func (l boundLogger) Info(msg string, args ...any)  { l.next.Info(msg, l.merge(args)...) }
func (l boundLogger) Warn(msg string, args ...any)  { l.next.Warn(msg, l.merge(args)...) }
func (l boundLogger) Error(msg string, args ...any) { l.next.Error(msg, l.merge(args)...) }

func (l boundLogger) merge(args []any) []any {
	out := make([]any, 0, len(l.args)+len(args))
	out = append(out, l.args...)

	return append(out, args...)
}
