package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"mqtttelemetry/internal/config"
)

// Log is a logrus entry carrying the fields added through With.
type Log struct {
	*logrus.Entry
}

// Fields are a representation of formatted log fields.
type Fields map[string]interface{}

// Logger is what the rest of the application depends on.
type Logger interface {
	// GetLevel returns the configured level name.
	GetLevel() string
	With(fields Fields) *Log
}

// NewLogger builds a logger from the [logger] config section.
func NewLogger(cfg config.LogConf) (*Log, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logger. Error in settings (level: %s): %w", cfg.Level, err)
	}

	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		return nil, fmt.Errorf("logger. Unknown output %q", cfg.Output)
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		log.Formatter = &logrus.TextFormatter{
			TimestampFormat:  "2006-01-02 15:04:05.0000",
			FullTimestamp:    true,
			QuoteEmptyFields: true,
		}
	case "json":
		log.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("logger. Unknown format %q", cfg.Format)
	}

	log.Debug("set level: ", level)
	return &Log{Entry: log.WithFields(nil)}, nil
}

// New wraps an existing logrus logger, mostly for tests.
func New(l *logrus.Logger) *Log {
	return &Log{Entry: logrus.NewEntry(l)}
}

// Default returns an info-level text logger on stdout, used when nothing
// else has been configured.
func Default() *Log {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	return New(l)
}

// Discard returns a logger that drops everything.
func Discard() *Log {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(l)
}

// With will add the fields to the formatted log entry.
func (l *Log) With(fields Fields) *Log {
	return &Log{Entry: l.WithFields(logrus.Fields(fields))}
}

func (l *Log) GetLevel() string {
	return l.Logger.Level.String()
}

// LevelWriter adapts the entry to the Println/Printf logger shape used by
// third-party libraries, emitting every line at a fixed level.
type LevelWriter struct {
	entry *logrus.Entry
	level logrus.Level
}

// AtLevel returns a LevelWriter for l.
func (l *Log) AtLevel(level logrus.Level) LevelWriter {
	return LevelWriter{entry: l.Entry, level: level}
}

func (w LevelWriter) Println(v ...interface{}) {
	w.entry.Log(w.level, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (w LevelWriter) Printf(format string, v ...interface{}) {
	w.entry.Logf(w.level, format, v...)
}
