package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/e7canasta/replay-sensor/internal/events"
	"github.com/e7canasta/replay-sensor/internal/types"
)

// Transient states revert to Ready on their own: a rejected trigger clears
// quickly, a saved or failed export lingers long enough to be read.
const (
	revertAfterReject = 3 * time.Second
	revertAfterResult = 5 * time.Second
)

// StatusTracker folds bus events into the operator-facing status and hands
// each change to a publish function.
type StatusTracker struct {
	publish   func(types.Status)
	retention func() int
	exporting func() bool

	mu            sync.Mutex
	state         string
	message       string
	bufferSeconds float64
	bufferFrames  int
	revert        *time.Timer
	revertGen     uint64
}

// NewStatusTracker creates a tracker. retention and exporting are sampled at
// publish time so the status always reflects live values.
func NewStatusTracker(publish func(types.Status), retention func() int, exporting func() bool) *StatusTracker {
	return &StatusTracker{
		publish:   publish,
		retention: retention,
		exporting: exporting,
		state:     types.StateReady,
	}
}

// Apply folds one event into the status and publishes the result.
func (t *StatusTracker) Apply(ev events.Event) {
	t.mu.Lock()

	switch ev.Type {
	case events.TypeBuffer:
		t.bufferSeconds = ev.BufferSeconds
		t.bufferFrames = ev.BufferFrames

	case events.TypeExportStarted:
		t.cancelRevert()
		t.state = types.StateExporting
		t.message = "saving replay"

	case events.TypeExportFinished:
		t.state = types.StateSaved
		t.message = fmt.Sprintf("saved %s", ev.Filename)
		t.scheduleRevert(revertAfterResult)

	case events.TypeExportFailed:
		t.state = types.StateError
		t.message = fmt.Sprintf("export failed: %s", ev.Err)
		t.scheduleRevert(revertAfterResult)

	case events.TypeExportRejected:
		t.state = types.StateEmptyBuffer
		t.message = "buffer is empty"
		t.scheduleRevert(revertAfterReject)

	case events.TypeSourceLost:
		// Terminal. No revert: the service is going down.
		t.cancelRevert()
		t.state = types.StateSourceLost
		t.message = "frame source lost"

	default:
		t.mu.Unlock()
		return
	}

	status := t.currentLocked()
	t.mu.Unlock()

	t.publish(status)
}

// Current returns the status as of now.
func (t *StatusTracker) Current() types.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentLocked()
}

func (t *StatusTracker) currentLocked() types.Status {
	return types.Status{
		State:            t.state,
		Message:          t.message,
		BufferSeconds:    t.bufferSeconds,
		BufferFrames:     t.bufferFrames,
		RetentionSeconds: t.retention(),
		IsExporting:      t.exporting(),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	}
}

// scheduleRevert arms the return-to-Ready timer, replacing any pending one.
// Caller holds the lock.
func (t *StatusTracker) scheduleRevert(after time.Duration) {
	t.cancelRevert()
	t.revertGen++
	gen := t.revertGen
	t.revert = time.AfterFunc(after, func() {
		t.mu.Lock()
		// A newer transition may have superseded this timer while it was
		// firing; only the latest generation reverts.
		if gen != t.revertGen || t.revert == nil {
			t.mu.Unlock()
			return
		}
		t.revert = nil
		t.state = types.StateReady
		t.message = ""
		status := t.currentLocked()
		t.mu.Unlock()

		t.publish(status)
	})
}

// cancelRevert stops a pending revert. Caller holds the lock.
func (t *StatusTracker) cancelRevert() {
	if t.revert != nil {
		t.revert.Stop()
		t.revert = nil
	}
}

// Stop cancels any pending revert timer.
func (t *StatusTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelRevert()
}
