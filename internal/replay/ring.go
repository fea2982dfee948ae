package replay

import "github.com/e7canasta/replay-sensor/internal/types"

// ring is a fixed-capacity circular frame array with overwrite-oldest
// eviction. Capacity is immutable for the lifetime of one ring instance;
// a retention change builds a new ring (see Buffer.SetRetention).
//
// Not safe for concurrent use on its own; Buffer provides the locking.
type ring struct {
	frames []types.Frame
	head   int // index of the oldest frame
	count  int // number of frames held, count <= len(frames)
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{
		frames: make([]types.Frame, capacity),
	}
}

// push inserts a frame as the newest element. When the ring is full the
// oldest frame is overwritten. O(1), never fails.
func (r *ring) push(f types.Frame) {
	if r.count < len(r.frames) {
		r.frames[(r.head+r.count)%len(r.frames)] = f
		r.count++
		return
	}
	// Full: the head slot becomes the new tail.
	r.frames[r.head] = f
	r.head = (r.head + 1) % len(r.frames)
}

// snapshot returns the held frames oldest-to-newest in a fresh slice.
// The ring is not mutated.
func (r *ring) snapshot() []types.Frame {
	out := make([]types.Frame, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.frames[(r.head+i)%len(r.frames)]
	}
	return out
}

func (r *ring) len() int { return r.count }

func (r *ring) capacity() int { return len(r.frames) }
