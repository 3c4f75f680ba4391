package logging

import (
	"bytes"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// maxLine bounds a buffered partial line; longer lines are split.
const maxLine = 64 * 1024

// LineWriter turns a byte stream into one log entry per line. The guest's
// stderr is wired here so it shares the process log format.
type LineWriter struct {
	logger *zap.Logger
	level  zapcore.Level

	mu  sync.Mutex
	buf []byte
}

// NewLineWriter creates a writer logging each line at level.
func NewLineWriter(logger *zap.Logger, level zapcore.Level) *LineWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LineWriter{logger: logger, level: level}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	for len(w.buf) >= maxLine {
		w.emit(w.buf[:maxLine])
		w.buf = w.buf[maxLine:]
	}
	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if ce := w.logger.Check(w.level, string(line)); ce != nil {
		ce.Write()
	}
}
