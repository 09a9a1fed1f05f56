package progress

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	sink.Report(Event{
		Level:   Warning,
		Stage:   "migrate",
		Message: "discarded change",
		Model:   "Book",
		Current: 1,
		Total:   3,
		Attrs:   []slog.Attr{slog.String("table", "books")},
	})

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `msg="discarded change"`)
	assert.Contains(t, out, "stage=migrate")
	assert.Contains(t, out, "model=Book")
	assert.Contains(t, out, "current=1")
	assert.Contains(t, out, "total=3")
	assert.Contains(t, out, "table=books")
}

func TestEvent_Attr(t *testing.T) {
	e := Event{Attrs: []slog.Attr{slog.String("change", "drop column"), slog.Int("n", 2)}}

	v, ok := e.Attr("change")
	assert.True(t, ok)
	assert.Equal(t, "drop column", v.String())

	v, ok = e.Attr("n")
	assert.True(t, ok)
	assert.Equal(t, int64(2), v.Int64())

	_, ok = e.Attr("missing")
	assert.False(t, ok)
}

func TestSinkFunc(t *testing.T) {
	var got []Event
	sink := OrDiscard(SinkFunc(func(e Event) { got = append(got, e) }))
	sink.Report(Event{Message: "a"})
	assert.Len(t, got, 1)

	OrDiscard(nil).Report(Event{Message: "dropped"})
	assert.Equal(t, "error", Error.String())
	assert.Equal(t, "info", Info.String())
}
