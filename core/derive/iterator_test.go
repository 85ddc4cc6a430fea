package derive

import (
	"testing"
)

type sliceIterator struct {
	values []int
	purged int
}

func (s *sliceIterator) Next() Result[int] {
	if len(s.values) == 0 {
		return NotReady[int]()
	}
	v := s.values[0]
	s.values = s.values[1:]
	return Ready(v)
}

func (s *sliceIterator) Purge() {
	s.values = nil
	s.purged++
}

var _ PurgeableIterator[int] = (*sliceIterator)(nil)

func TestResult(t *testing.T) {
	r := Ready(7)
	v, ok := r.Get()
	if !ok || v != 7 || !r.IsReady() || r.Value() != 7 {
		t.Fatalf("unexpected ready result: %v %v", v, ok)
	}

	n := NotReady[int]()
	v, ok = n.Get()
	if ok || v != 0 || n.IsReady() {
		t.Fatalf("unexpected not-ready result: %v %v", v, ok)
	}

	var zero Result[*int]
	if zero.IsReady() || zero.Value() != nil {
		t.Fatal("zero Result must be NotReady")
	}
}

func TestDrain(t *testing.T) {
	it := &sliceIterator{values: []int{1, 2, 3, 4}}
	got := Drain[int](it, 2)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("bounded drain: got %v", got)
	}

	got = Drain[int](it, 0)
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("unbounded drain: got %v", got)
	}

	// not ready is not exhaustion: new values can show up later
	if got := Drain[int](it, 0); len(got) != 0 {
		t.Fatalf("expected no values, got %v", got)
	}
	it.values = append(it.values, 5)
	if v, ok := it.Next().Get(); !ok || v != 5 {
		t.Fatalf("expected value after refill, got %v %v", v, ok)
	}
}
