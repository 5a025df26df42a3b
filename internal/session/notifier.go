package session

import (
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/lull/internal/event"
	"github.com/Iron-Ham/lull/internal/logging"
)

// EventCompleted is the bus event type published when a session expires.
const EventCompleted = "session.completed"

// CompletedEvent carries the final value of an expired session.
type CompletedEvent struct {
	event.Base
	Session Session
}

// NewCompletedEvent creates a CompletedEvent stamped with at.
func NewCompletedEvent(s Session, at time.Time) CompletedEvent {
	return CompletedEvent{
		Base:    event.NewBase(EventCompleted, at),
		Session: s,
	}
}

// notifiedLimit bounds how many delivered ids are remembered for
// duplicate suppression. The store removes each session once, so the set
// only has to cover ids that could still be in flight.
const notifiedLimit = 1024

// Notifier hands each completed session to its listener exactly once per
// session id, then publishes a CompletedEvent for other bus subscribers.
// NotifyOnce only enqueues; a dedicated goroutine drains the queue in FIFO
// order, so callers never wait on the listener.
type Notifier struct {
	bus      *event.Bus
	clock    Clock
	logger   *logging.Logger
	listener CompletionFunc

	mu       sync.Mutex
	notified map[string]struct{}
	order    []string
	queue    []Session
	started  bool
	closed   bool

	wake chan struct{}
	wg   conc.WaitGroup
}

func newNotifier(bus *event.Bus, clock Clock, logger *logging.Logger) *Notifier {
	return &Notifier{
		bus:      bus,
		clock:    clock,
		logger:   logger,
		notified: make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// start launches the delivery goroutine with listener, which may be nil.
// Later calls are no-ops.
func (n *Notifier) start(listener CompletionFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started || n.closed {
		return
	}
	n.started = true
	n.listener = listener
	n.wg.Go(n.run)
}

// NotifyOnce queues s for delivery. It returns false if s was already
// queued or delivered, or if the notifier is closed.
func (n *Notifier) NotifyOnce(s Session) bool {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		n.logger.Warn("dropping completion after close", "session_id", s.ID())
		return false
	}
	if _, dup := n.notified[s.ID()]; dup {
		n.mu.Unlock()
		n.logger.Debug("duplicate completion suppressed", "session_id", s.ID())
		return false
	}
	n.remember(s.ID())
	n.queue = append(n.queue, s)
	n.mu.Unlock()

	n.signal()
	return true
}

// remember must be called with mu held. The oldest id is forgotten once
// more than notifiedLimit are tracked.
func (n *Notifier) remember(id string) {
	n.notified[id] = struct{}{}
	n.order = append(n.order, id)
	if len(n.order) > notifiedLimit {
		delete(n.notified, n.order[0])
		n.order = n.order[1:]
	}
}

// pending returns the number of queued, undelivered completions.
func (n *Notifier) pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

func (n *Notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *Notifier) run() {
	for {
		n.mu.Lock()
		batch := n.queue
		n.queue = nil
		closed := n.closed
		n.mu.Unlock()

		for _, s := range batch {
			n.deliver(s)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-n.wake
	}
}

func (n *Notifier) deliver(s Session) {
	logger := n.logger.WithSession(s.ID())

	if n.listener != nil {
		var pc panics.Catcher
		pc.Try(func() { n.listener(s) })
		if r := pc.Recovered(); r != nil {
			logger.Error("completion listener panicked", "panic", r.String())
		}
	}

	observers := n.bus.Publish(NewCompletedEvent(s, n.clock.Now()))
	logger.Info("session completed",
		"duration", s.Duration().String(),
		"observers", observers,
	)
}

// close delivers everything already queued, then stops the goroutine.
func (n *Notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	n.signal()
	n.wg.Wait()
}
