package eventlog

import (
	"bytes"
	"strings"
	"testing"

	"pennsim/proctypes"
)

func TestAppendStreamsToSink(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)
	log.Append(Record{Tick: 3, Event: EventSchedule, PID: 2, Priority: proctypes.PriorityHigh, Command: "sh"})

	if !strings.Contains(buf.String(), "SCHEDULE") {
		t.Fatalf("expected the sink to receive the formatted line, got %q", buf.String())
	}
	if len(log.Records()) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(log.Records()))
	}
}

func TestAppendWithNilSink(t *testing.T) {
	log := New(nil)
	log.Append(Record{Tick: 0, Event: EventCreate})
	if len(log.Records()) != 1 {
		t.Fatalf("records should still accumulate with a nil sink")
	}
}

func TestCountByEventAndPriority(t *testing.T) {
	log := New(nil)
	log.Append(Record{Event: EventSchedule, Priority: proctypes.PriorityHigh})
	log.Append(Record{Event: EventSchedule, Priority: proctypes.PriorityHigh})
	log.Append(Record{Event: EventSchedule, Priority: proctypes.PriorityLow})
	log.Append(Record{Event: EventBlocked, Priority: proctypes.PriorityHigh})

	if n := log.CountByEvent(EventSchedule); n != 3 {
		t.Fatalf("expected 3 SCHEDULE records, got %d", n)
	}
	if n := log.CountByEventAndPriority(EventSchedule, proctypes.PriorityHigh); n != 2 {
		t.Fatalf("expected 2 high-priority SCHEDULE records, got %d", n)
	}
}

func TestFormatIncludesDetail(t *testing.T) {
	r := Record{Tick: 1, Event: EventNice, PID: 4, Command: "x", Detail: "old=1 new=2"}
	formatted := r.Format()
	if !strings.Contains(formatted, "old=1 new=2") {
		t.Fatalf("expected detail in formatted line, got %q", formatted)
	}
}

func TestRecordsReturnsACopy(t *testing.T) {
	log := New(nil)
	log.Append(Record{Event: EventCreate})
	out := log.Records()
	out[0].Event = "MUTATED"
	if log.Records()[0].Event == "MUTATED" {
		t.Fatalf("Records() should return a defensive copy")
	}
}
