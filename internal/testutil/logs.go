package testutil

import (
	"context"
	"log/slog"
	"sync"
)

// LogRecord is one captured slog record with its attributes flattened.
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogRecorder is a slog.Handler that keeps every record in memory so tests
// can assert on warnings and debug traces.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type LogRecorder struct {
	mu      *sync.Mutex
	records *[]LogRecord
	attrs   []slog.Attr
}

// NewLogRecorder creates an empty recorder.
func NewLogRecorder() *LogRecorder {
	return &LogRecorder{mu: &sync.Mutex{}, records: &[]LogRecord{}}
}

// Logger returns a slog.Logger writing to the recorder.
func (r *LogRecorder) Logger() *slog.Logger {
	return slog.New(r)
}

// Enabled implements slog.Handler. Every level is recorded.
func (r *LogRecorder) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle implements slog.Handler.
func (r *LogRecorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any, rec.NumAttrs()+len(r.attrs))
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = append(*r.records, LogRecord{Level: rec.Level, Message: rec.Message, Attrs: attrs})
	return nil
}

// WithAttrs implements slog.Handler.
func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogRecorder{
		mu:      r.mu,
		records: r.records,
		attrs:   append(append([]slog.Attr{}, r.attrs...), attrs...),
	}
}

// WithGroup implements slog.Handler. Groups are flattened.
func (r *LogRecorder) WithGroup(string) slog.Handler {
	return r
}

// Records returns a copy of everything captured so far.
func (r *LogRecorder) Records() []LogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogRecord(nil), *r.records...)
}

// Count returns how many records carry the given message.
func (r *LogRecorder) Count(msg string) int {
	n := 0
	for _, rec := range r.Records() {
		if rec.Message == msg {
			n++
		}
	}
	return n
}

// Find returns the first record with the given message.
func (r *LogRecorder) Find(msg string) (LogRecord, bool) {
	for _, rec := range r.Records() {
		if rec.Message == msg {
			return rec, true
		}
	}
	return LogRecord{}, false
}

// Messages returns the messages of every record at the given level, in order.
func (r *LogRecorder) Messages(level slog.Level) []string {
	var msgs []string
	for _, rec := range r.Records() {
		if rec.Level == level {
			msgs = append(msgs, rec.Message)
		}
	}
	return msgs
}
