// Package logsink provides an slog.Handler that keeps the records of the
// current task so they can be persisted when the task's tracker closes.
//
// A Sink is created once per process and passed explicitly to every engine
// call. Drain hands back the buffered records and clears the buffer.
package logsink

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Record is one buffered log record with its attributes flattened to
// key=value text.
type Record struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   string
}

type buffer struct {
	mu      sync.Mutex
	records []Record
	limit   int
}

// Sink buffers records and forwards them to a wrapped handler.
type Sink struct {
	next   slog.Handler
	buf    *buffer
	level  slog.Leveler
	prefix []slog.Attr
	group  string
}

// DefaultLimit bounds the number of buffered records. Older records are
// dropped first.
const DefaultLimit = 10000

// New creates a Sink forwarding to next. A nil next discards forwarded
// records. Records below level are neither buffered nor forwarded.
func New(next slog.Handler, level slog.Leveler) *Sink {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Sink{
		next:  next,
		buf:   &buffer{limit: DefaultLimit},
		level: level,
	}
}

// Enabled implements slog.Handler.
func (s *Sink) Enabled(_ context.Context, l slog.Level) bool {
	return l >= s.level.Level()
}

// Handle implements slog.Handler.
func (s *Sink) Handle(ctx context.Context, r slog.Record) error {
	var b strings.Builder
	write := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		if s.group != "" {
			b.WriteString(s.group)
			b.WriteByte('.')
		}
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(a.Value.String())
	}
	for _, a := range s.prefix {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})

	s.buf.add(Record{
		Time:    r.Time.UTC(),
		Level:   r.Level,
		Message: r.Message,
		Attrs:   b.String(),
	})

	if s.next != nil && s.next.Enabled(ctx, r.Level) {
		return s.next.Handle(ctx, r)
	}
	return nil
}

// WithAttrs implements slog.Handler. The returned handler shares the
// buffer with s.
func (s *Sink) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *s
	c.prefix = append(append([]slog.Attr{}, s.prefix...), attrs...)
	if s.next != nil {
		c.next = s.next.WithAttrs(attrs)
	}
	return &c
}

// WithGroup implements slog.Handler.
func (s *Sink) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	c := *s
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	if s.next != nil {
		c.next = s.next.WithGroup(name)
	}
	return &c
}

// Drain returns the buffered records in arrival order and empties the
// buffer.
func (s *Sink) Drain() []Record {
	s.buf.mu.Lock()
	defer s.buf.mu.Unlock()
	out := s.buf.records
	s.buf.records = nil
	if out == nil {
		out = []Record{}
	}
	return out
}

// Len returns the number of buffered records.
func (s *Sink) Len() int {
	s.buf.mu.Lock()
	defer s.buf.mu.Unlock()
	return len(s.buf.records)
}

func (b *buffer) add(r Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && len(b.records) >= b.limit {
		b.records = b.records[1:]
	}
	b.records = append(b.records, r)
}
