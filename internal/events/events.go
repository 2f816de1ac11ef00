// Typed event stream emitted by the pipeline driver for observability.
// The emitter is injected explicitly; the core packages never reach for a
// global sink.
package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeError       Type = "error"
	TypeRetry       Type = "retry"
	TypeRateLimited Type = "rate_limited"
	TypeCompleted   Type = "completed"
)

// Event is one observability record. FileKey/NodeID are optional context;
// they are empty on run-level events such as completed.
type Event struct {
	Type          Type      `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	RunID         string    `json:"run_id,omitempty"`
	FileKey       string    `json:"file_key,omitempty"`
	NodeID        string    `json:"node_id,omitempty"`
	RetryAfterSec int       `json:"retry_after_sec,omitempty"`
	Attempt       int       `json:"attempt,omitempty"`
	ChangedNodes  int       `json:"changed_nodes,omitempty"`
	Err           error     `json:"-"`
}

// Emitter receives pipeline events. Implementations must not block.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a plain function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) {
	f(e)
}

// ChannelSink buffers events on a channel for an external consumer.
// Events are dropped when the buffer is full rather than blocking the run.
type ChannelSink struct {
	C chan Event
}

func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{C: make(chan Event, size)}
}

func (s *ChannelSink) Emit(e Event) {
	select {
	case s.C <- e:
	default:
	}
}

// Nop discards all events.
type Nop struct{}

func (Nop) Emit(Event) {}

// NewRunID returns an identifier shared by every event of one run.
func NewRunID() string {
	return uuid.New().String()
}

// Stamp fills in the timestamp if the caller did not set one.
func Stamp(e Event) Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}
