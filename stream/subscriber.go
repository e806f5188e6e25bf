package stream

import "sync"

// Subscriber receives events on a buffered channel. A slow subscriber
// loses events rather than blocking the publisher.
type Subscriber struct {
	id string
	ch chan *Event

	mu     sync.Mutex
	closed bool
}

func newSubscriber(id string, bufferSize int) *Subscriber {
	return &Subscriber{id: id, ch: make(chan *Event, bufferSize)}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the event channel. It is closed when the subscriber is removed.
func (s *Subscriber) C() <-chan *Event { return s.ch }

func (s *Subscriber) send(evt *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
