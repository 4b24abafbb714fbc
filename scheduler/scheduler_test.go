package scheduler

import (
	"testing"

	"pennsim/eventlog"
	"pennsim/pcb"
	"pennsim/proctypes"
	"pennsim/queue"
)

func TestBuildScheduleMatchesWeights(t *testing.T) {
	w := [proctypes.NumPriorities]int{9, 6, 4}
	seq := buildSchedule(w)

	if len(seq) != 19 {
		t.Fatalf("expected a 19-slot schedule, got %d", len(seq))
	}
	var counts [proctypes.NumPriorities]int
	for _, lvl := range seq {
		counts[lvl]++
	}
	if counts != w {
		t.Fatalf("expected per-level counts %v, got %v", w, counts)
	}
}

func TestBuildScheduleNeverRunsOneLevelMoreThanTwiceInARow(t *testing.T) {
	seq := buildSchedule([proctypes.NumPriorities]int{9, 6, 4})
	run := 1
	for i := 1; i < len(seq); i++ {
		if seq[i] == seq[i-1] {
			run++
			if run > 2 {
				t.Fatalf("priority %v ran %d times in a row starting at index %d", seq[i], run, i-run+1)
			}
		} else {
			run = 1
		}
	}
}

func TestPickCyclesOverReadyLevels(t *testing.T) {
	table := pcb.NewTable(4)
	q := queue.New(eventlog.New(nil))
	s := &Scheduler{queues: q, schedule: buildSchedule(weights)}

	high, _ := table.Create(nil, "high", nil)
	high.Priority = proctypes.PriorityHigh
	q.Enqueue(high)

	lvl, ok := s.pick()
	if !ok || lvl != proctypes.PriorityHigh {
		t.Fatalf("expected to pick the only ready level (high), got (%v, %v)", lvl, ok)
	}
}

func TestPickReturnsFalseWhenNothingReady(t *testing.T) {
	q := queue.New(eventlog.New(nil))
	s := &Scheduler{queues: q, schedule: buildSchedule(weights)}

	if _, ok := s.pick(); ok {
		t.Fatalf("pick should report false when every ready level is empty")
	}
}
