// Package utils provides shared helpers for the trading service: the structured
// logger used by every component and startup validation of the loaded configuration.
package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a thin key/value facade over logrus.
//
//	logger.Info("snipe dispatched", "user_id", userID, "token", tokenID)
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a logger writing to stdout with the given level and format
// ("json" or "text"). Unknown levels fall back to info.
func NewLogger(level, format string) *Logger {
	return NewLoggerWithOutput(level, format, os.Stdout)
}

// NewLoggerWithOutput is NewLogger with an explicit writer.
func NewLoggerWithOutput(level, format string, out io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{})
	}

	return &Logger{entry: logrus.NewEntry(base)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewLoggerWithOutput("panic", "json", io.Discard)
}

// With returns a child logger carrying the given key/value pairs on every entry.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(toFields(keyvals))}
}

// Entry exposes the underlying logrus entry for libraries that want one.
func (l *Logger) Entry() *logrus.Entry {
	return l.entry
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.entry.WithFields(toFields(keyvals)).Debug(msg)
}

func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.entry.WithFields(toFields(keyvals)).Info(msg)
}

func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.entry.WithFields(toFields(keyvals)).Warn(msg)
}

func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.entry.WithFields(toFields(keyvals)).Error(msg)
}

// toFields pairs up keyvals. A dangling key is reported under "!BADKEY".
func toFields(keyvals []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 >= len(keyvals) {
			fields["!BADKEY"] = keyvals[i]
			break
		}
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		val := keyvals[i+1]
		if err, isErr := val.(error); isErr && err != nil {
			val = err.Error()
		}
		fields[key] = val
	}
	return fields
}
