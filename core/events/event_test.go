package events

import (
	"testing"

	"ripe/core/types"
)

type testEvent struct{ name string }

func (e testEvent) EventType() string { return e.name }

func (e testEvent) Event() *types.Event {
	return &types.Event{Type: e.name, Attributes: map[string]string{"name": e.name}}
}

func TestBufferFlushPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(testEvent{"a"})
	buf.Emit(testEvent{"b"})

	rec := &Recorder{}
	buf.Flush(rec)
	got := rec.Events()
	if len(got) != 2 || got[0].EventType() != "a" || got[1].EventType() != "b" {
		t.Fatalf("unexpected events: %+v", got)
	}

	buf.Flush(rec)
	if len(rec.Events()) != 2 {
		t.Fatalf("expected buffer to be empty after flush")
	}
}

func TestBufferDiscard(t *testing.T) {
	var buf Buffer
	buf.Emit(testEvent{"a"})
	buf.Discard()
	rec := &Recorder{}
	buf.Flush(rec)
	if len(rec.Events()) != 0 {
		t.Fatalf("expected discarded events to be dropped")
	}
}

func TestFanoutAndOfType(t *testing.T) {
	left, right := &Recorder{}, &Recorder{}
	Fanout{left, nil, right}.Emit(testEvent{"x"})
	if len(left.OfType("x")) != 1 || len(right.OfType("x")) != 1 {
		t.Fatalf("expected both recorders to receive the event")
	}
	if attr := left.OfType("x")[0].Attr("name"); attr != "x" {
		t.Fatalf("unexpected attribute %q", attr)
	}
}
