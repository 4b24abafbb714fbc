// Package eventlog implements an append-only, per-tick event record.
// It is never read by the kernel itself; it exists purely as an
// observable trace for tests and shell-level `ps`/`jobs` reporting,
// kept separate from the ambient diagnostic logger.
package eventlog

import (
	"fmt"
	"io"
	"strings"

	"pennsim/proctypes"
)

// Record is one line of the event log.
type Record struct {
	Tick     int
	Event    string
	PID      proctypes.PID
	PPID     proctypes.PID
	State    proctypes.State
	Priority proctypes.Priority
	Command  string
	// Detail carries event-specific extra fields, e.g. NICE's old/new
	// priority pair.
	Detail string
}

// Log is an in-memory, append-only sequence of records plus an optional
// text sink.
type Log struct {
	records []Record
	sink    io.Writer
}

// New returns a log that writes formatted lines to sink as they are
// appended; sink may be nil to keep records in memory only.
func New(sink io.Writer) *Log {
	return &Log{sink: sink}
}

// Append records an event and, if a sink is set, writes its formatted
// line immediately.
func (l *Log) Append(r Record) {
	l.records = append(l.records, r)
	if l.sink != nil {
		fmt.Fprintln(l.sink, r.Format())
	}
}

// Format renders a record as a fixed-width text line:
// "[ <tick:5> ] <event:10> <pid:5> <prio:4> <cmd>".
func (r Record) Format() string {
	line := fmt.Sprintf("[ %5d ] %-10s %5d %4d %s", r.Tick, r.Event, r.PID, r.Priority, r.Command)
	if r.Detail != "" {
		line += " " + r.Detail
	}
	return line
}

// Records returns a snapshot of every appended record, in order.
func (l *Log) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// CountByEvent tallies how many records carry the given event name.
func (l *Log) CountByEvent(event string) int {
	n := 0
	for _, r := range l.records {
		if r.Event == event {
			n++
		}
	}
	return n
}

// CountByEventAndPriority is CountByEvent narrowed to one priority
// level.
func (l *Log) CountByEventAndPriority(event string, pr proctypes.Priority) int {
	n := 0
	for _, r := range l.records {
		if r.Event == event && r.Priority == pr {
			n++
		}
	}
	return n
}

// Dump renders every record as a single newline-joined string, for
// debugging failed test assertions.
func (l *Log) Dump() string {
	lines := make([]string, len(l.records))
	for i, r := range l.records {
		lines[i] = r.Format()
	}
	return strings.Join(lines, "\n")
}

// Standard event names.
const (
	EventBlocked    = "BLOCKED"
	EventUnblocked  = "UNBLOCKED"
	EventStopped    = "STOPPED"
	EventContinued  = "CONTINUED"
	EventNice       = "NICE"
	EventSchedule   = "SCHEDULE"
	EventOrphan     = "ORPHAN"
	EventWaited     = "WAITED"
	EventExited     = "EXITED"
	EventSignaled   = "SIGNALED"
	EventCreate     = "CREATE"
)
