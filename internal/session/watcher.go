package session

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/lull/internal/logging"
)

// DefaultPollInterval is how often the watcher scans for expired sessions.
const DefaultPollInterval = time.Second

// Watcher periodically removes expired sessions from the store and hands
// them to the notifier. Start is idempotent; Stop waits for the loop to
// exit, after which Start may run it again.
type Watcher struct {
	store    *store
	notifier *Notifier
	clock    Clock
	interval time.Duration
	logger   *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newWatcher(s *store, n *Notifier, clock Clock, interval time.Duration, logger *logging.Logger) *Watcher {
	return &Watcher{
		store:    s,
		notifier: n,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the polling loop unless it is already running. The loop
// exits when ctx is canceled or Stop is called. It reports whether a new
// loop was started.
func (w *Watcher) Start(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done != nil {
		select {
		case <-w.done:
			// Parent context ended the previous loop.
		default:
			return false
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx, w.done)

	w.logger.Debug("expiration watcher started", "interval", w.interval.String())
	return true
}

// Stop cancels the loop and waits for it to exit. It is safe to call Stop
// even if Start was never called.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Debug("expiration watcher stopped")
}

// running reports whether the polling loop is active.
func (w *Watcher) running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *Watcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick runs one scan. Expired sessions are handed to the notifier after
// the store has released its mutex.
func (w *Watcher) tick(ctx context.Context) int {
	expired := w.store.expire(ctx, truncate(w.clock.Now()))
	for _, s := range expired {
		w.logger.WithSession(s.ID()).Debug("session expired")
		w.notifier.NotifyOnce(s)
	}
	return len(expired)
}
