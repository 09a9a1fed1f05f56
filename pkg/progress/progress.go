// Package progress carries structured progress and diagnostic events out of
// the engine. Formatting is left to the receiver.
package progress

import (
	"context"
	"log/slog"
)

// Level is the severity of an event.
type Level int

// Levels.
const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Event is one progress report. Current and Total are zero when the event
// does not describe a step in a sequence.
type Event struct {
	Level   Level
	Stage   string
	Message string
	Model   string
	Current int
	Total   int
	// Attrs carry the details of the event, e.g. the table a change
	// applies to. Receivers decide how to present them.
	Attrs []slog.Attr
}

// Attr returns the value of the named attribute.
func (e Event) Attr(key string) (slog.Value, bool) {
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return slog.Value{}, false
}

// Sink receives events.
type Sink interface {
	Report(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

// Report implements Sink.
func (f SinkFunc) Report(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

type logSink struct {
	logger *slog.Logger
}

// NewLogSink reports events to a structured logger.
func NewLogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &logSink{logger: logger}
}

func (s *logSink) Report(e Event) {
	level := slog.LevelInfo
	switch e.Level {
	case Warning:
		level = slog.LevelWarn
	case Error:
		level = slog.LevelError
	}
	attrs := []slog.Attr{slog.String("stage", e.Stage)}
	if e.Model != "" {
		attrs = append(attrs, slog.String("model", e.Model))
	}
	if e.Total > 0 {
		attrs = append(attrs, slog.Int("current", e.Current), slog.Int("total", e.Total))
	}
	attrs = append(attrs, e.Attrs...)
	s.logger.LogAttrs(context.Background(), level, e.Message, attrs...)
}
