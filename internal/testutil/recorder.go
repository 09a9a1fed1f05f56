package testutil

import (
	"sync"

	"github.com/leapstack-labs/leaporm/pkg/progress"
)

// Recorder is a progress sink that keeps every event for inspection.
type Recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

// Report implements progress.Sink.
func (r *Recorder) Report(e progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

// Messages returns the messages of events at the given level.
func (r *Recorder) Messages(level progress.Level) []string {
	var out []string
	for _, e := range r.Events() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// At returns the events at the given level.
func (r *Recorder) At(level progress.Level) []progress.Event {
	var out []progress.Event
	for _, e := range r.Events() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
