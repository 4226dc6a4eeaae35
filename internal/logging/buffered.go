package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// flushMu serialises every Buffered flush in the process, so one unit's
// lines come out as a contiguous block.
var flushMu sync.Mutex

type bufferedEntry struct {
	at     time.Time
	level  zapcore.Level
	msg    string
	fields []zap.Field
}

// Buffered collects log entries for one unit of work and writes them to the
// base logger in one piece on Flush. Not safe for concurrent use; each worker
// owns its own.
type Buffered struct {
	base    *zap.Logger
	entries []bufferedEntry
}

// NewBuffered creates a buffer whose entries carry unit=name
func NewBuffered(base *zap.Logger, unit string) *Buffered {
	return &Buffered{base: base.With(zap.String("unit", unit))}
}

func (b *Buffered) add(level zapcore.Level, msg string, fields []zap.Field) {
	b.entries = append(b.entries, bufferedEntry{at: time.Now(), level: level, msg: msg, fields: fields})
}

// Debug buffers a debug entry
func (b *Buffered) Debug(msg string, fields ...zap.Field) { b.add(zapcore.DebugLevel, msg, fields) }

// Info buffers an info entry
func (b *Buffered) Info(msg string, fields ...zap.Field) { b.add(zapcore.InfoLevel, msg, fields) }

// Warn buffers a warning
func (b *Buffered) Warn(msg string, fields ...zap.Field) { b.add(zapcore.WarnLevel, msg, fields) }

// Error buffers an error entry
func (b *Buffered) Error(msg string, fields ...zap.Field) { b.add(zapcore.ErrorLevel, msg, fields) }

// Len returns the number of pending entries
func (b *Buffered) Len() int { return len(b.entries) }

// Flush writes all pending entries under the process-wide flush lock and
// empties the buffer. Entries keep the time they were recorded.
func (b *Buffered) Flush() {
	if len(b.entries) == 0 {
		return
	}
	flushMu.Lock()
	defer flushMu.Unlock()

	for _, e := range b.entries {
		if ce := b.base.Check(e.level, e.msg); ce != nil {
			ce.Time = e.at
			ce.Write(e.fields...)
		}
	}
	b.entries = b.entries[:0]
}
