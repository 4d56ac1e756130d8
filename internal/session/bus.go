package session

import (
	"sync"
	"time"
)

// Bus is one session's event stream: it assigns sequence numbers, retains
// a bounded backlog for late joiners, and fans events out to any number of
// subscribers without ever blocking the publisher.
//
// Each subscriber gets a bounded queue drained by its own delivery
// goroutine. When a queue saturates, the oldest undelivered event is
// dropped and the subscriber later receives a synthetic gap event naming
// the dropped sequence range — observers are told what they missed, never
// silently skipped past.
type Bus struct {
	mu       sync.Mutex
	seq      uint64
	backlog  []Event
	capacity int
	depth    int
	subs     map[*Subscriber]struct{}
	closed   bool
}

func newBus(backlogCapacity, queueDepth int) *Bus {
	return &Bus{
		capacity: backlogCapacity,
		depth:    queueDepth,
		subs:     make(map[*Subscriber]struct{}),
	}
}

// Publish assigns the next sequence number, appends to the retained
// backlog (evicting the oldest entry when full) and offers the event to
// every attached subscriber. Publishing on a closed bus is a no-op.
//
// Delivery happens under b.mu: offer is a non-blocking drop-oldest
// enqueue, and serializing it with sequence assignment keeps each
// subscriber's arrival order aligned with sequence order when multiple
// goroutines publish at once (the worker's sink races the registry's
// forced status transitions).
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.seq++
	ev.Seq = b.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.backlog = append(b.backlog, ev)
	if len(b.backlog) > b.capacity {
		b.backlog = b.backlog[1:]
	}

	for sub := range b.subs {
		sub.offer(ev)
	}
}

// Subscribe attaches a new subscriber and returns a copy of the retained
// backlog in sequence order. The subscriber's channel carries only events
// published after the returned backlog, so a caller that replays the
// backlog first sees a consistent, gapless prefix.
func (b *Bus) Subscribe() ([]Event, *Subscriber) {
	sub := &Subscriber{
		bus:   b,
		depth: b.depth,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		out:   make(chan Event),
	}

	b.mu.Lock()
	backlog := make([]Event, len(b.backlog))
	copy(backlog, b.backlog)
	if b.closed {
		close(sub.done)
		sub.closed = true
	} else {
		b.subs[sub] = struct{}{}
	}
	b.mu.Unlock()

	go sub.deliver()
	return backlog, sub
}

// Close detaches every subscriber and drops future publishes. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*Subscriber]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.shutdown()
	}
}

func (b *Bus) remove(sub *Subscriber) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// SubscriberCount returns the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscriber is one observer's attachment to a Bus. Events arrive on
// Events() in publish order; a gap event stands in for any stretch the
// subscriber was too slow to keep.
type Subscriber struct {
	bus   *Bus
	depth int

	mu      sync.Mutex
	queue   []Event
	gapFrom uint64
	gapTo   uint64
	closed  bool

	wake chan struct{}
	done chan struct{}
	out  chan Event
}

// Events returns the live feed. The channel is closed when the subscriber
// is closed or the bus shuts down.
func (s *Subscriber) Events() <-chan Event {
	return s.out
}

// Close detaches from the bus and releases the queue. Idempotent; safe to
// call concurrently with delivery.
func (s *Subscriber) Close() {
	s.bus.remove(s)
	s.shutdown()
}

func (s *Subscriber) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}

// offer enqueues an event for delivery, dropping the oldest pending event
// when the queue is full and folding it into the pending gap range.
func (s *Subscriber) offer(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.depth {
		dropped := s.queue[0]
		s.queue = s.queue[1:]
		if s.gapFrom == 0 {
			s.gapFrom = dropped.Seq
		}
		s.gapTo = dropped.Seq
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next pops the next deliverable event: a pending gap marker takes
// priority over queued events so the observer learns about the loss
// before seeing what follows it.
func (s *Subscriber) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gapFrom != 0 {
		ev := Event{
			Type:      EventGap,
			Seq:       s.gapFrom,
			Timestamp: time.Now(),
			GapFrom:   s.gapFrom,
			GapTo:     s.gapTo,
		}
		s.gapFrom, s.gapTo = 0, 0
		return ev, true
	}
	if len(s.queue) > 0 {
		ev := s.queue[0]
		s.queue = s.queue[1:]
		return ev, true
	}
	return Event{}, false
}

func (s *Subscriber) deliver() {
	defer close(s.out)
	for {
		ev, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
