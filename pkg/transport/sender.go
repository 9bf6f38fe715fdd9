package transport

import (
	"sync"

	"github.com/go-pvaccess/pva/pkg/codec"
)

// Sender is the outbound interface every producer enqueues against a
// transport. Lock/Unlock let the send worker serialize access to state the
// sender shares with its producer; Send does the actual framing against
// the transport's Writer and is always followed by an implicit
// EndMessage(false).
type Sender interface {
	Lock()
	Unlock()
	Send(w *codec.Writer) error
}

// breakSender is the sentinel enqueued by Close to unblock a send worker
// parked on an empty queue.
type breakSender struct{}

func (breakSender) Lock()                      {}
func (breakSender) Unlock()                     {}
func (breakSender) Send(*codec.Writer) error { return nil }

// senderFunc adapts a plain function plus an external lock into a Sender,
// for the common case of a handler completion that owns no state of its
// own worth locking separately.
type senderFunc struct {
	mu sync.Locker
	fn func(w *codec.Writer) error
}

// NewSenderFunc builds a Sender from fn. If mu is nil, a fresh mutex private
// to this Sender is used — appropriate when fn touches nothing else could
// race on.
func NewSenderFunc(mu sync.Locker, fn func(w *codec.Writer) error) Sender {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &senderFunc{mu: mu, fn: fn}
}

func (s *senderFunc) Lock()   { s.mu.Lock() }
func (s *senderFunc) Unlock() { s.mu.Unlock() }
func (s *senderFunc) Send(w *codec.Writer) error { return s.fn(w) }

// senderQueue is the mutex/condition-variable outbound deque: push from
// any thread, pop from the send worker.
type senderQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Sender
	closed bool
}

func newSenderQueue() *senderQueue {
	q := &senderQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *senderQueue) push(s Sender) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, s)
	q.cond.Signal()
}

// empty reports whether the queue currently holds no senders. Used by the
// fast-path enqueue check.
func (q *senderQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// popBatch blocks until at least one sender is queued, then returns up to
// max of them in enqueue order.
func (q *senderQueue) popBatch(max int) []Sender {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil
	}
	n := len(q.items)
	if n > max {
		n = max
	}
	batch := q.items[:n]
	q.items = q.items[n:]
	return batch
}

// closeQueue enqueues the break sentinel and marks the queue closed; any
// blocked popBatch wakes and returns just the sentinel.
func (q *senderQueue) closeQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = append(q.items, breakSender{})
	q.cond.Broadcast()
}
