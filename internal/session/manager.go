package session

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/lull/internal/event"
	"github.com/Iron-Ham/lull/internal/logging"
	"github.com/Iron-Ham/lull/internal/persist"
)

// CompletionFunc receives each completed session exactly once. It runs on
// the notifier goroutine and must not call Manager.Close.
type CompletionFunc func(Session)

type commandKind int

const (
	cmdLoad commandKind = iota
	cmdStart
	cmdEnd
)

func (k commandKind) String() string {
	switch k {
	case cmdLoad:
		return "load"
	case cmdStart:
		return "start"
	case cmdEnd:
		return "end"
	default:
		return "unknown"
	}
}

type command struct {
	kind commandKind
	done chan struct{}
}

// commandBuffer bounds how many Start/End requests may queue before
// callers block on the send as well as on completion.
const commandBuffer = 64

// Manager owns the session lifecycle. Start and End requests run one at a
// time on a single worker in arrival order; each call returns once its
// transition, including the persistence attempt, has finished.
//
// Storage failures are logged and never returned: the in-memory state stays
// authoritative and failed writes are retried by the watcher.
type Manager struct {
	persister persist.Store
	store     *store
	watcher   *Watcher
	notifier  *Notifier
	bus       *event.Bus
	logger    *logging.Logger
	clock     Clock

	gracePeriod  time.Duration
	pollInterval time.Duration

	mu          sync.RWMutex
	initialized bool
	closed      bool
	commands    chan command
	ctx         context.Context
	cancel      context.CancelFunc
	worker      conc.WaitGroup
}

// NewManager creates a Manager persisting to persister. Call Initialize
// before StartSession or EndSession.
func NewManager(persister persist.Store, opts ...Option) *Manager {
	m := &Manager{
		persister:    persister,
		logger:       logging.NopLogger(),
		clock:        systemClock{},
		gracePeriod:  DefaultGracePeriod,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.bus == nil {
		m.bus = event.NewBus(m.logger)
	}
	m.logger = m.logger.WithComponent("session")
	m.store = newStore(persister, m.logger)
	m.notifier = newNotifier(m.bus, m.clock, m.logger)
	m.watcher = newWatcher(m.store, m.notifier, m.clock, m.pollInterval, m.logger)
	return m
}

// Initialize registers listener for the sessions this manager completes,
// starts the command worker, and loads persisted sessions. It blocks until loading has finished.
// Calling it again, or after Close, only logs a warning.
func (m *Manager) Initialize(listener CompletionFunc) {
	m.mu.Lock()
	if m.initialized || m.closed {
		m.mu.Unlock()
		m.logger.Warn("ignoring repeated initialize", "closed", m.closed)
		return
	}
	m.initialized = true
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.commands = make(chan command, commandBuffer)

	m.notifier.start(listener)
	m.worker.Go(m.runCommands)

	load := command{kind: cmdLoad, done: make(chan struct{})}
	m.commands <- load
	m.mu.Unlock()

	<-load.done
}

// StartSession resumes the previous session if it is still within its grace
// period, otherwise creates a new one. It does nothing while a session is
// active.
func (m *Manager) StartSession() {
	m.submit(cmdStart)
}

// EndSession ends the active session, leaving it resumable for its grace
// period. It does nothing when no session is active.
func (m *Manager) EndSession() {
	m.submit(cmdEnd)
}

func (m *Manager) submit(kind commandKind) {
	m.mu.RLock()
	if !m.initialized || m.closed {
		initialized, closed := m.initialized, m.closed
		m.mu.RUnlock()
		m.logger.Warn("ignoring session command",
			"command", kind.String(),
			"initialized", initialized,
			"closed", closed,
		)
		return
	}

	cmd := command{kind: kind, done: make(chan struct{})}
	m.commands <- cmd
	m.mu.RUnlock()

	<-cmd.done
}

func (m *Manager) runCommands() {
	for cmd := range m.commands {
		m.execute(cmd.kind)
		close(cmd.done)
	}
}

func (m *Manager) execute(kind commandKind) {
	switch kind {
	case cmdLoad:
		m.load()
	case cmdStart:
		m.startSession()
	case cmdEnd:
		m.endSession()
	}
}

func (m *Manager) load() {
	records, err := m.persister.Load(m.ctx)
	if err != nil {
		logStorageError(m.logger, "failed to load persisted sessions", err, "valid_records", len(records))
	}

	loaded, recovered := m.store.load(m.ctx, records, m.now())
	m.logger.Info("loaded persisted sessions", "sessions", loaded, "recovered", recovered)

	if loaded > 0 {
		m.watcher.Start(m.ctx)
	}
}

func (m *Manager) startSession() {
	sess, outcome := m.store.start(m.ctx, m.now(), m.gracePeriod)
	log := m.logger.WithSession(sess.ID())

	switch outcome {
	case startIgnored:
		log.Debug("session already active")
		return
	case startResumed:
		log.Info("session resumed")
	case startCreated:
		log.Info("session created", "grace_period", sess.GracePeriod().String())
	}
	m.watcher.Start(m.ctx)
}

func (m *Manager) endSession() {
	sess, ok := m.store.end(m.ctx, m.now())
	if !ok {
		m.logger.Debug("no active session to end")
		return
	}
	m.logger.WithSession(sess.ID()).Info("session ended", "duration", sess.Duration().String())
}

// Close drains queued commands, stops the watcher, retries any failed
// write, and delivers pending completions before returning. Later Start
// and End calls are logged no-ops. Close is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	initialized := m.initialized
	if initialized {
		close(m.commands)
	}
	m.mu.Unlock()

	if !initialized {
		return
	}

	m.worker.Wait()
	m.watcher.Stop()
	if !m.store.flush(m.ctx) {
		m.logger.Error("sessions not persisted at shutdown")
	}
	m.notifier.close()
	m.cancel()
	m.logger.Debug("session manager closed")
}

// Snapshot returns a copy of the tracked sessions in insertion order.
func (m *Manager) Snapshot() []Session {
	return m.store.snapshot()
}

// Current returns the active session, if any.
func (m *Manager) Current() (Session, bool) {
	return m.store.currentSession()
}

// Bus returns the bus completions are published on.
func (m *Manager) Bus() *event.Bus {
	return m.bus
}

func (m *Manager) now() time.Time {
	return truncate(m.clock.Now())
}
