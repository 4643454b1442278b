// Package events defines the telemetry envelope the engine emits and the
// sinks that receive it.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names an event type.
type Kind string

const (
	KindTickSummary     Kind = "tick.summary"
	KindStride          Kind = "stride.exec"
	KindDecay           Kind = "decay.tick"
	KindStrengthening   Kind = "strengthening"
	KindCriticality     Kind = "criticality.state"
	KindViolation       Kind = "tripwire.violation"
	KindSafeModeEnter   Kind = "safe_mode.enter"
	KindSafeModeExit    Kind = "safe_mode.exit"
	KindStimulusDropped Kind = "stimulus.dropped"
)

// Event is one telemetry record. Payload is a JSON-encodable value.
type Event struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Tick    uint64    `json:"tick"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// New creates an event with a fresh ID.
func New(kind Kind, tick uint64, at time.Time, payload any) Event {
	return Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Tick:    tick,
		At:      at,
		Payload: payload,
	}
}

// Sink receives events. Publish errors are returned to the caller.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Multi fans an event out to every sink and joins their errors. Nil sinks
// are skipped.
func Multi(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return multi(live)
}

type multi []Sink

func (m multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Buffer keeps published events in memory. It is safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewBuffer creates a buffer keeping at most limit events; zero keeps all.
func NewBuffer(limit int) *Buffer {
	return &Buffer{limit: limit}
}

// Publish appends e, evicting the oldest event when full.
func (b *Buffer) Publish(_ context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	if b.limit > 0 && len(b.events) > b.limit {
		b.events = append(b.events[:0:0], b.events[len(b.events)-b.limit:]...)
	}
	return nil
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// OfKind returns the buffered events of kind k.
func (b *Buffer) OfKind(k Kind) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, e := range b.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Reset drops all buffered events.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
