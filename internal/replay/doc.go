// Package replay implements the rolling frame buffer at the heart of the
// instant-replay recorder.
//
// # Philosophy
//
// "A full buffer is steady state, not a fault."
//
// The buffer holds the most recent W seconds of footage. Pushing into a full
// ring evicts the oldest frame in O(1); nothing ever blocks or fails on the
// ingestion path. Readers take a consistent snapshot copy and do all further
// work (scaling, encoding, I/O) outside the lock.
//
// # Structure
//
//	ring    fixed circular array, head index + count, capacity immutable
//	Buffer  lock-guarded owner of the live ring plus its retention config
//
// One mutex guards the ring AND the retention metadata as a single unit, so a
// retention change can never race a push. Changing retention builds a new
// ring, re-inserts the newest frames, and swaps it in atomically (single
// assignment under the lock); the capacity of any one ring never changes.
//
// # Concurrency
//
//   - one writer (the capture driver) calls Push
//   - any number of readers call Len/Seconds/Snapshot
//   - SetRetention serializes with all of the above on the same mutex
//
// Snapshot returns frames in strict capture order with no gaps or duplicates
// relative to what was pushed up to the call.
package replay
