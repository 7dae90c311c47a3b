// Package logger provides structured logging with file and console output.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	zerolog.Logger

	out io.Writer
}

// New creates a new logger with the specified level and optional file output.
func New(level string, logFile string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"},
	}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return nil, err
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	multi := zerolog.MultiLevelWriter(writers...)

	logger := zerolog.New(multi).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: logger, out: multi}, nil
}

// Nop returns a logger that discards everything, for tests.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop(), out: io.Discard}
}

// ChannelWriter forwards error-level log lines to an external notice
// sink, typically a Telegram channel. Delivery happens on its own
// goroutine and failures are dropped, so logging never blocks a
// handler.
type ChannelWriter struct {
	Send func(text string) error
}

func (w *ChannelWriter) Write(p []byte) (int, error) {
	line := string(p)
	go func() { _ = w.Send(line) }()
	return len(p), nil
}

// WriteLevel filters out everything below the error level.
func (w *ChannelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.ErrorLevel {
		return len(p), nil
	}
	return w.Write(p)
}

// AttachNotifier reroutes the logger so error-level lines are also
// delivered through send, on top of the existing outputs. Call before
// handing the logger to concurrent users.
func (l *Logger) AttachNotifier(send func(text string) error) {
	l.out = zerolog.MultiLevelWriter(l.out, &ChannelWriter{Send: send})
	l.Logger = l.Logger.Output(l.out)
}

// Global is the global logger instance for convenience.
var Global *Logger

// Init initializes the global logger.
func Init(level string, logFile string) error {
	l, err := New(level, logFile)
	if err != nil {
		return err
	}
	Global = l
	return nil
}

// Get returns the global logger, or a no-op logger if not initialized.
func Get() *Logger {
	if Global == nil {
		return Nop()
	}
	return Global
}
