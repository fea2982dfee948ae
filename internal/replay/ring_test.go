package replay

import (
	"testing"

	"github.com/e7canasta/replay-sensor/internal/types"
)

func frameSeq(seq uint64) types.Frame {
	return types.Frame{Seq: seq, Format: types.FormatRGB24}
}

// Property: len <= capacity after every push, for any push count.
func TestRing_BoundedLength(t *testing.T) {
	capacities := []int{1, 3, 10, 150}

	for _, capacity := range capacities {
		r := newRing(capacity)
		for i := 0; i < capacity*3+7; i++ {
			r.push(frameSeq(uint64(i)))
			if r.len() > capacity {
				t.Fatalf("capacity %d: len %d exceeds capacity after push %d", capacity, r.len(), i)
			}
		}
		if r.capacity() != capacity {
			t.Errorf("capacity changed: got %d, want %d", r.capacity(), capacity)
		}
	}
}

// Property: pushing capacity+k frames leaves exactly the last capacity
// frames in original relative order.
func TestRing_OverwriteOrder(t *testing.T) {
	cases := []struct {
		name     string
		capacity int
		pushes   int
	}{
		{"exactly full", 5, 5},
		{"one over", 5, 6},
		{"many over", 5, 23},
		{"single slot", 1, 10},
		{"under capacity", 8, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRing(tc.capacity)
			for i := 1; i <= tc.pushes; i++ {
				r.push(frameSeq(uint64(i)))
			}

			want := tc.pushes
			if want > tc.capacity {
				want = tc.capacity
			}

			snap := r.snapshot()
			if len(snap) != want {
				t.Fatalf("snapshot length: got %d, want %d", len(snap), want)
			}
			first := uint64(tc.pushes - want + 1)
			for i, f := range snap {
				if f.Seq != first+uint64(i) {
					t.Fatalf("snapshot[%d]: got seq %d, want %d", i, f.Seq, first+uint64(i))
				}
			}
		})
	}
}

func TestRing_SnapshotDoesNotMutate(t *testing.T) {
	r := newRing(4)
	for i := 1; i <= 6; i++ {
		r.push(frameSeq(uint64(i)))
	}

	before := r.snapshot()
	after := r.snapshot()

	if len(before) != len(after) {
		t.Fatalf("snapshot mutated the ring: %d vs %d frames", len(before), len(after))
	}
	for i := range before {
		if before[i].Seq != after[i].Seq {
			t.Fatalf("snapshot mutated order at %d: %d vs %d", i, before[i].Seq, after[i].Seq)
		}
	}

	// Pushing after a snapshot must not alter the copy already handed out.
	r.push(frameSeq(99))
	if before[0].Seq != 3 {
		t.Errorf("snapshot copy aliased ring storage: got seq %d, want 3", before[0].Seq)
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := newRing(0)
	if r.capacity() != 1 {
		t.Fatalf("zero capacity not clamped: got %d, want 1", r.capacity())
	}
	r.push(frameSeq(1))
	r.push(frameSeq(2))
	snap := r.snapshot()
	if len(snap) != 1 || snap[0].Seq != 2 {
		t.Errorf("single-slot ring should hold only the newest frame, got %+v", snap)
	}
}
