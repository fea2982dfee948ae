// Package events provides non-blocking fan-out of recorder events to
// presentation subscribers.
//
// The core never reaches into presentation state: the capture driver and
// the exporter publish discrete events here, and sinks (MQTT emitter,
// loggers) consume them from their own channels. If a subscriber's channel
// is full the event is dropped rather than queued; a slow sink must never
// slow ingestion.
package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/replay-sensor/internal/types"
)

// Type identifies what an event reports.
type Type string

const (
	// TypeBuffer is a throttled buffer-fill update from the capture driver.
	TypeBuffer Type = "buffer"
	// TypePreview carries a downscaled copy of the latest frame.
	TypePreview Type = "preview"
	// TypeExportStarted reports a trigger accepted and an export beginning.
	TypeExportStarted Type = "export_started"
	// TypeExportFinished reports a completed export with its filename.
	TypeExportFinished Type = "export_finished"
	// TypeExportFailed reports a failed export with its error.
	TypeExportFailed Type = "export_failed"
	// TypeExportRejected reports a trigger rejected (empty buffer).
	TypeExportRejected Type = "export_rejected"
	// TypeSourceLost reports the capture loop terminating.
	TypeSourceLost Type = "source_lost"
)

// Event is a single recorder event. Only the fields relevant to the Type
// are populated.
type Event struct {
	Type      Type
	Timestamp time.Time

	// TypeBuffer
	BufferSeconds float64
	BufferFrames  int

	// TypePreview
	Preview *types.Frame

	// Export events
	JobID    string
	Filename string
	Frames   int
	Err      string
}

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with an unknown id.
	ErrSubscriberNotFound = errors.New("subscriber id not found")

	// ErrBusClosed is returned when operations are attempted on a closed bus.
	ErrBusClosed = errors.New("bus is closed")

	// ErrNilChannel is returned when Subscribe is called with a nil channel.
	ErrNilChannel = errors.New("subscriber channel cannot be nil")
)

// SubscriberStats tracks delivery metrics for a single subscriber.
type SubscriberStats struct {
	// Sent is the number of events delivered to this subscriber
	Sent uint64
	// Dropped is the number of events dropped due to a full channel
	Dropped uint64
}

// BusStats contains global and per-subscriber metrics.
type BusStats struct {
	TotalPublished uint64
	TotalSent      uint64
	TotalDropped   uint64
	Subscribers    map[string]SubscriberStats
}

type subscriberStats struct {
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus distributes events to subscribers with a drop policy.
// All methods are safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan<- Event
	stats       map[string]*subscriberStats
	closed      bool

	totalPublished atomic.Uint64
}

// New creates an event bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan<- Event),
		stats:       make(map[string]*subscriberStats),
	}
}

// Subscribe registers a channel to receive events.
func (b *Bus) Subscribe(id string, ch chan<- Event) error {
	if ch == nil {
		return ErrNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = ch
	b.stats[id] = &subscriberStats{}
	return nil
}

// Unsubscribe removes a subscriber by id.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	delete(b.stats, id)
	return nil
}

// Publish sends an event to all subscribers without blocking. Subscribers
// whose channels are full have the event dropped and counted. Publishing
// on a closed bus is a no-op.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.totalPublished.Add(1)
	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
			b.stats[id].sent.Add(1)
		default:
			b.stats[id].dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of delivery counters.
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := BusStats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats),
	}
	for id, s := range b.stats {
		sent := s.sent.Load()
		dropped := s.dropped.Load()
		result.TotalSent += sent
		result.TotalDropped += dropped
		result.Subscribers[id] = SubscriberStats{Sent: sent, Dropped: dropped}
	}
	return result
}

// Close stops the bus. Subsequent Subscribe calls fail with ErrBusClosed
// and Publish becomes a no-op. Subscriber channels are not closed here;
// each subscriber owns its channel lifecycle. Idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
