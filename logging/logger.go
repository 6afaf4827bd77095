package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a diagnostics gate. The threshold is fixed at construction, so a logger is
// safe to share between goroutines and is passed explicitly to every component.
type Logger struct {
	threshold Level
	entry     *logrus.Entry
}

// New returns a logger emitting messages not above the threshold into out.
func New(threshold Level, out io.Writer) *Logger {
	backend := logrus.New()
	backend.SetOutput(out)
	// logrus must never filter by itself, otherwise the levels squeezed together in
	// logrusLevels would become indistinguishable.
	backend.SetLevel(logrus.TraceLevel)
	backend.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
	})

	return &Logger{
		threshold: threshold,
		entry:     logrus.NewEntry(backend),
	}
}

// Stderr is a shorthand for New(threshold, os.Stderr).
func Stderr(threshold Level) *Logger {
	return New(threshold, os.Stderr)
}

// Nop returns a logger that never emits anything.
func Nop() *Logger {
	return New(Disabled, io.Discard)
}

// Threshold returns the level the logger was constructed with.
func (l *Logger) Threshold() Level {
	return l.threshold
}

// Enabled reports whether a message of the level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	return level != Disabled && level <= l.threshold
}

// Emit writes the message if the level passes the threshold. Emitting at Fatal does not
// terminate the process.
func (l *Logger) Emit(level Level, msg string) {
	if !l.Enabled(level) {
		return
	}

	l.entry.WithField("severity", level.String()).Log(logrusLevels[level], msg)
}

// Emitf is Emit with formatting. Arguments aren't evaluated into a string unless the
// message passes the threshold.
func (l *Logger) Emitf(level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}

	l.Emit(level, fmt.Sprintf(format, args...))
}

// With returns a logger attaching the field to every message.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{
		threshold: l.threshold,
		entry:     l.entry.WithField(key, value),
	}
}

// WithError is a shorthand for With("error", err).
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		threshold: l.threshold,
		entry:     l.entry.WithError(err),
	}
}

func (l *Logger) Fatal(msg string)    { l.Emit(Fatal, msg) }
func (l *Logger) Critical(msg string) { l.Emit(Critical, msg) }
func (l *Logger) Error(msg string)    { l.Emit(Error, msg) }
func (l *Logger) Warning(msg string)  { l.Emit(Warning, msg) }
func (l *Logger) Notice(msg string)   { l.Emit(Notice, msg) }
func (l *Logger) Info(msg string)     { l.Emit(Info, msg) }
func (l *Logger) Debug(msg string)    { l.Emit(Debug, msg) }
func (l *Logger) Trace(msg string)    { l.Emit(Trace, msg) }

// Writer returns an io.Writer emitting every line written into it as a separate message
// of the level. Incomplete lines are held until the newline arrives or Flush is called.
func (l *Logger) Writer(level Level) *LineWriter {
	return &LineWriter{logger: l, level: level}
}

// LineWriter is returned by Logger.Writer. It isn't safe for concurrent use.
type LineWriter struct {
	logger *Logger
	level  Level
	buff   []byte
}

func (w *LineWriter) Write(b []byte) (int, error) {
	n := len(b)

	for len(b) > 0 {
		lf := bytes.IndexByte(b, '\n')
		if lf == -1 {
			w.buff = append(w.buff, b...)
			break
		}

		w.buff = append(w.buff, b[:lf]...)
		w.emit()
		b = b[lf+1:]
	}

	return n, nil
}

// Flush emits the pending incomplete line, if any.
func (w *LineWriter) Flush() {
	if len(w.buff) > 0 {
		w.emit()
	}
}

func (w *LineWriter) emit() {
	w.logger.Emit(w.level, string(bytes.TrimRight(w.buff, "\r")))
	w.buff = w.buff[:0]
}
