// Package stream implements the per-search event stream: an ordered,
// append-only, multi-subscriber sequence of lifecycle events with
// replay for late subscribers.
package stream

import (
	"sync"

	"github.com/dondelocompro/pricehub/internal/domain"
)

// DefaultSubscriberBuffer is the live-event buffer per subscriber.
const DefaultSubscriberBuffer = 64

// Stream is the event stream for one search. All published events are
// retained for replay until the owning search record is dropped; each
// subscriber additionally gets a bounded buffer for live delivery.
type Stream struct {
	mu      sync.Mutex
	buf     int
	history []domain.Event
	subs    map[*Subscription]struct{}
	closed  bool
}

// New creates a stream. subscriberBuffer bounds the live buffer per
// subscriber; non-positive values fall back to DefaultSubscriberBuffer.
func New(subscriberBuffer int) *Stream {
	if subscriberBuffer <= 0 {
		subscriberBuffer = DefaultSubscriberBuffer
	}
	return &Stream{
		buf:  subscriberBuffer,
		subs: make(map[*Subscription]struct{}),
	}
}

// Publish assigns the next sequence number, appends the event to the
// replay history and fans it out to all subscribers. Publish never
// blocks on subscriber consumption: a subscriber whose buffer is full
// is evicted instead of stalling the producer. Returns false once the
// stream is closed.
func (s *Stream) Publish(e domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	e.Seq = uint64(len(s.history)) + 1
	s.history = append(s.history, e)

	for sub := range s.subs {
		select {
		case sub.ch <- e:
		default:
			s.drop(sub)
		}
	}
	return true
}

// Subscribe attaches a new subscriber. The returned subscription first
// replays every event published so far, in original order, then
// delivers live events. Subscribing to a closed stream still replays
// the full history; the channel then ends.
func (s *Stream) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscription{
		stream: s,
		ch:     make(chan domain.Event, len(s.history)+s.buf),
	}
	for _, e := range s.history {
		sub.ch <- e
	}
	if s.closed {
		sub.done = true
		close(sub.ch)
		return sub
	}
	s.subs[sub] = struct{}{}
	return sub
}

// Close ends the stream: no further publishes are accepted and every
// subscriber channel ends once its buffered events are drained.
// Idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for sub := range s.subs {
		s.drop(sub)
	}
}

// History returns a copy of every event published so far.
func (s *Stream) History() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Event, len(s.history))
	copy(out, s.history)
	return out
}

// SubscriberCount returns the number of attached subscribers.
func (s *Stream) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// drop detaches a subscriber and ends its channel. Caller holds s.mu.
func (s *Stream) drop(sub *Subscription) {
	if sub.done {
		return
	}
	sub.done = true
	delete(s.subs, sub)
	close(sub.ch)
}

// Subscription is one subscriber's handle on a stream.
type Subscription struct {
	stream *Stream
	ch     chan domain.Event
	done   bool // guarded by stream.mu
}

// Events returns the receive channel. It is closed when the stream
// closes, the subscriber is evicted, or Unsubscribe is called; buffered
// events remain readable after close.
func (sub *Subscription) Events() <-chan domain.Event {
	return sub.ch
}

// Unsubscribe detaches the subscriber without affecting the producer or
// other subscribers. Safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	sub.stream.mu.Lock()
	defer sub.stream.mu.Unlock()
	sub.stream.drop(sub)
}
