package seq

import "testing"

func TestAppendAndPopFront(t *testing.T) {
	s := New[int]()
	s.Append(1)
	s.Append(2)
	s.Append(3)

	if s.Len() != 3 {
		t.Fatalf("expected length 3, got %d", s.Len())
	}
	v, ok := s.PopFront()
	if !ok || v != 1 {
		t.Fatalf("expected (1, true), got (%d, %v)", v, ok)
	}
	if s.Len() != 2 {
		t.Fatalf("expected length 2 after pop, got %d", s.Len())
	}
}

func TestPopFrontEmpty(t *testing.T) {
	s := New[string]()
	if _, ok := s.PopFront(); ok {
		t.Fatalf("pop from empty sequence should report ok=false")
	}
}

func TestRemoveValue(t *testing.T) {
	s := New[int]()
	for _, v := range []int{10, 20, 30, 20} {
		s.Append(v)
	}
	if !s.RemoveValue(20) {
		t.Fatalf("expected to remove the first 20")
	}
	if s.Len() != 3 {
		t.Fatalf("expected length 3, got %d", s.Len())
	}
	if s.At(0) != 10 || s.At(1) != 30 || s.At(2) != 20 {
		t.Fatalf("unexpected order after removal: %v", s.Slice())
	}
	if s.RemoveValue(999) {
		t.Fatalf("removing an absent value should report false")
	}
}

func TestContainsAndEach(t *testing.T) {
	s := New[string]()
	s.Append("a")
	s.Append("b")

	if !s.Contains("a") || s.Contains("z") {
		t.Fatalf("Contains mismatch")
	}

	var seen []string
	s.Each(func(v string) { seen = append(seen, v) })
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("unexpected Each order: %v", seen)
	}
}

func TestSliceIsACopy(t *testing.T) {
	s := New[int]()
	s.Append(1)
	out := s.Slice()
	out[0] = 99
	if s.At(0) != 1 {
		t.Fatalf("Slice should return a copy, mutation leaked into the sequence")
	}
}
