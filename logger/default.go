package logger

import "io"

var defLogger = NewSlog(InfoLevel, false)

func Debug(msg string, keysAndValues ...any) {
	defLogger.Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	defLogger.Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	defLogger.Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	defLogger.Error(msg, keysAndValues...)
}

func SetLevel(level Level) {
	defLogger.SetLevel(level)
}

func GetLogger() Logger {
	return defLogger
}

// SetLogger replaces the default logger
func SetLogger(l Logger) {
	defLogger = l
}

func With(keyValues ...any) Logger {
	return defLogger.With(keyValues...)
}

// Discard returns a logger that drops everything, for tests
func Discard() Logger {
	return NewSlogWriter(io.Discard, FatalLevel, false, false)
}
