package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	logger     *logrus.Logger
	loggerOnce sync.Once
)

// initLogger initializes the global logger to write to stderr with timestamps.
func initLogger() {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	})
}

// Logger exposes the underlying logrus logger, e.g. for libraries that
// want a Printf-style sink.
func Logger() *logrus.Logger {
	initLogger()
	return logger
}

func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LevelError:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
}

// ParseLevel accepts level names case-insensitively ("debug", "INFO", ...).
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug, nil
	case LevelInfo, "":
		return LevelInfo, nil
	case LevelWarn, "WARNING":
		return LevelWarn, nil
	case LevelError:
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// SetFormat switches between "text" (default) and "json" output.
func SetFormat(format string) error {
	initLogger()
	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// SetOutput redirects log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	initLogger()
	logger.SetOutput(w)
}

func Debug(msg string, kv ...any) {
	std().Debug(msg, kv...)
}

func Info(msg string, kv ...any) {
	std().Info(msg, kv...)
}

func Warn(msg string, kv ...any) {
	std().Warn(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	std().Error(msg, err, kv...)
}

// Entry is a logger carrying a fixed set of key-value fields.
type Entry struct {
	e *logrus.Entry
}

// With returns an Entry that adds kv to every line it writes.
func With(kv ...any) *Entry {
	return std().With(kv...)
}

func std() *Entry {
	initLogger()
	return &Entry{e: logrus.NewEntry(logger)}
}

func (l *Entry) With(kv ...any) *Entry {
	return &Entry{e: l.e.WithFields(fields(kv))}
}

func (l *Entry) Debug(msg string, kv ...any) {
	l.e.WithFields(fields(kv)).Debug(msg)
}

func (l *Entry) Info(msg string, kv ...any) {
	l.e.WithFields(fields(kv)).Info(msg)
}

func (l *Entry) Warn(msg string, kv ...any) {
	l.e.WithFields(fields(kv)).Warn(msg)
}

func (l *Entry) Error(msg string, err error, kv ...any) {
	l.e.WithFields(fields(kv)).WithError(err).Error(msg)
}

// fields converts key, value, key, value, ... into logrus fields.
// Non-string keys are skipped; a trailing key without value is ignored.
func fields(kv []any) logrus.Fields {
	out := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out[key] = kv[i+1]
	}
	return out
}
