// Package logging binds mailqueue.Logger to logrus.
package logging

import (
	"errors"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/AdewaleAdeniji/mailqueue"
)

// ErrUnknownFormat is returned for a log format other than text or json.
var ErrUnknownFormat = errors.New("logging: unknown format")

// Logger adapts a logrus entry to mailqueue.Logger. Key/value pairs become fields.
type Logger struct {
	entry *log.Entry
}

var _ mailqueue.Logger = (*Logger)(nil)

// New builds a logrus logger writing to out with the given level and format ("text" or "json").
func New(out io.Writer, level, format string) (*Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	l := log.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "", "text":
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&log.JSONFormatter{})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	return Wrap(l), nil
}

// Wrap adapts an existing logrus logger.
func Wrap(l *log.Logger) *Logger {
	return &Logger{entry: log.NewEntry(l)}
}

// With returns a logger that adds the pairs to every event.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{entry: l.entry.WithFields(fields(args))}
}

// Debug implements mailqueue.Logger.
func (l *Logger) Debug(msg string, args ...any) {
	l.entry.WithFields(fields(args)).Debug(msg)
}

// Info implements mailqueue.Logger.
func (l *Logger) Info(msg string, args ...any) {
	l.entry.WithFields(fields(args)).Info(msg)
}

// Warn implements mailqueue.Logger.
func (l *Logger) Warn(msg string, args ...any) {
	l.entry.WithFields(fields(args)).Warn(msg)
}

// Error implements mailqueue.Logger.
func (l *Logger) Error(msg string, args ...any) {
	l.entry.WithFields(fields(args)).Error(msg)
}

func fields(args []any) log.Fields {
	f := make(log.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			f["!BADKEY"] = key
			break
		}
		value := args[i+1]
		// errors are kept as plain strings
		if err, isErr := value.(error); isErr {
			value = err.Error()
		}
		f[key] = value
	}

	return f
}
