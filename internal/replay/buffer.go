package replay

import (
	"math"
	"sync"
	"time"

	"github.com/e7canasta/replay-sensor/internal/types"
)

// Snapshot is a consistent point-in-time copy of the buffer contents,
// taken under the lock and owned by the caller.
type Snapshot struct {
	// Frames oldest-to-newest, as of the instant the snapshot was taken
	Frames []types.Frame
	// FPS is the frame rate the buffer was sized with
	FPS float64
	// Taken is when the snapshot was observed
	Taken time.Time
}

// Duration returns the footage length the snapshot represents.
func (s Snapshot) Duration() time.Duration {
	if s.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.Frames)) / s.FPS * float64(time.Second))
}

// Buffer is the lock-protected owner of the live ring and its retention
// configuration. Exactly one capture driver writes via Push; any number of
// readers take snapshots or length reads under the same mutex.
type Buffer struct {
	mu           sync.Mutex
	ring         *ring
	fps          float64
	retentionSec int
}

// New creates a buffer sized for retentionSec seconds of footage at fps.
func New(fps float64, retentionSec int) *Buffer {
	if fps <= 0 {
		fps = 30
	}
	return &Buffer{
		ring:         newRing(capacityFor(fps, retentionSec)),
		fps:          fps,
		retentionSec: retentionSec,
	}
}

// capacityFor derives the ring capacity as round(fps x seconds), minimum 1.
func capacityFor(fps float64, seconds int) int {
	c := int(math.Round(fps * float64(seconds)))
	if c < 1 {
		c = 1
	}
	return c
}

// Push appends a frame, evicting the oldest if the ring is full, and
// returns the seconds of footage currently buffered. The lock is held only
// for the O(1) insert; callers must do scaling and I/O beforehand.
func (b *Buffer) Push(f types.Frame) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring.push(f)
	return float64(b.ring.len()) / b.fps
}

// Len returns the current frame count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.len()
}

// Capacity returns the current ring capacity in frames.
func (b *Buffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.capacity()
}

// Seconds returns the seconds of footage currently buffered.
func (b *Buffer) Seconds() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.ring.len()) / b.fps
}

// Retention returns the configured retention window in seconds.
func (b *Buffer) Retention() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retentionSec
}

// FPS returns the frame rate the buffer is sized with.
func (b *Buffer) FPS() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fps
}

// Snapshot returns an ordered copy of the buffered frames together with the
// FPS and observation time. The buffer is not mutated; the copy is taken
// in one atomic observation under the lock.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Frames: b.ring.snapshot(),
		FPS:    b.fps,
		Taken:  time.Now(),
	}
}

// SetRetention changes the retention window live and returns the new ring
// capacity.
//
// A new ring of the derived capacity is built, the most recent
// min(len, newCapacity) frames are re-inserted oldest-to-newest, and the new
// ring is swapped in with a single assignment. All of it happens under the
// buffer lock, so no push can interleave: no frame is lost or duplicated by
// a concurrent resize. Growing retains every frame; shrinking drops the
// oldest frames beyond the new capacity.
func (b *Buffer) SetRetention(seconds int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	newCap := capacityFor(b.fps, seconds)
	fresh := newRing(newCap)

	current := b.ring.snapshot()
	keep := len(current)
	if keep > newCap {
		keep = newCap
	}
	for _, f := range current[len(current)-keep:] {
		fresh.push(f)
	}

	b.ring = fresh
	b.retentionSec = seconds
	return newCap
}
