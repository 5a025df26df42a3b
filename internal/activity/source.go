package activity

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/lull/internal/logging"
)

// DefaultIdleTimeout is how long the tree must stay quiet before the
// session is ended.
const DefaultIdleTimeout = 2 * time.Second

// Sink receives session signals. *session.Manager satisfies it.
type Sink interface {
	StartSession()
	EndSession()
}

// Source watches a directory tree and drives a Sink.
type Source struct {
	watcher     *fsnotify.Watcher
	sink        Sink
	root        string
	idleTimeout time.Duration
	ignorePaths []string
	logger      *logging.Logger

	mu      sync.Mutex
	active  bool
	events  int
	started bool
	// manual counts StartSession/EndSession calls; an idle timer armed
	// before the latest one does not end the session.
	manual uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// Option configures a Source.
type Option func(*Source)

// WithIdleTimeout sets the quiet time that ends a session. Non-positive
// values are ignored.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIgnoreHidden skips every file or directory whose name starts with a dot.
func WithIgnoreHidden() Option {
	return func(s *Source) {
		s.ignorePaths = append(s.ignorePaths, ".*")
	}
}

// WithIgnorePaths adds base-name patterns (filepath.Match syntax) to skip.
func WithIgnorePaths(patterns ...string) Option {
	return func(s *Source) {
		s.ignorePaths = append(s.ignorePaths, patterns...)
	}
}

// New creates a Source watching root and every directory below it.
func New(root string, sink Sink, opts ...Option) (*Source, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	s := &Source{
		watcher:     watcher,
		sink:        sink,
		root:        filepath.Clean(root),
		idleTimeout: DefaultIdleTimeout,
		ignorePaths: []string{".git", "node_modules", ".DS_Store"},
		logger:      logging.NopLogger(),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("activity")

	if err := watcher.Add(s.root); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}
	s.watchDirRecursive(s.root)

	return s, nil
}

// watchDirRecursive adds every non-ignored directory under root.
func (s *Source) watchDirRecursive(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors, continue walking
		}
		if path != root && s.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() && path != root {
			if err := s.watcher.Add(path); err != nil {
				s.logger.Debug("failed to watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
}

func (s *Source) ignored(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		for _, pattern := range s.ignorePaths {
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}

// Start begins processing filesystem events. Later calls are no-ops.
func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	go s.watchLoop()
}

// Stop stops watching and ends the session if one is in progress. It is
// safe to call more than once.
func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.started = true // keep a late Start from launching the loop
		s.mu.Unlock()

		close(s.stopCh)
		_ = s.watcher.Close()
		if started {
			<-s.done
		}

		if s.setActive(false) {
			s.sink.EndSession()
		}
	})
}

// Active reports whether the source has started a session that has not
// yet gone idle.
func (s *Source) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Events returns how many relevant filesystem events have been seen.
func (s *Source) Events() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// StartSession starts or resumes a session on behalf of another input, such
// as a user command, and records it so file activity and the idle timer
// treat it as the shared session. The session is not ended by the idle
// timer unless files are written after this call.
func (s *Source) StartSession() {
	s.mu.Lock()
	s.active = true
	s.manual++
	s.mu.Unlock()
	s.sink.StartSession()
}

// EndSession ends the session on behalf of another input. The next file
// write starts (or resumes) a session again.
func (s *Source) EndSession() {
	s.mu.Lock()
	s.active = false
	s.manual++
	s.mu.Unlock()
	s.sink.EndSession()
}

func (s *Source) manualCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manual
}

// endIdle ends the session if it is active and no manual command arrived
// since the timer was armed at generation armed.
func (s *Source) endIdle(armed uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.manual != armed {
		return false
	}
	s.active = false
	return true
}

// setActive stores v and reports whether it changed.
func (s *Source) setActive(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.active != v
	s.active = v
	return changed
}

// watchLoop processes filesystem events
func (s *Source) watchLoop() {
	defer close(s.done)

	idleTimer := time.NewTimer(0)
	<-idleTimer.C // drain initial timer
	var armed uint64

	for {
		select {
		case <-s.stopCh:
			idleTimer.Stop()
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !s.handleEvent(event) {
				continue
			}
			armed = s.manualCount()
			idleTimer.Reset(s.idleTimeout)

		case <-idleTimer.C:
			if s.endIdle(armed) {
				s.logger.Debug("activity idle, ending session")
				s.sink.EndSession()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("file watcher error", "error", err)
		}
	}
}

// handleEvent records a relevant event and starts a session on the first
// one after a quiet period. It reports whether the event counted as activity.
func (s *Source) handleEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	if s.ignored(event.Name) {
		return false
	}

	// New directories need their own watch.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			s.watchDirRecursive(event.Name)
			if err := s.watcher.Add(event.Name); err != nil {
				s.logger.Debug("failed to watch directory", "path", event.Name, "error", err)
			}
		}
	}

	s.mu.Lock()
	s.events++
	s.mu.Unlock()

	if s.setActive(true) {
		s.logger.Debug("activity detected, starting session", "path", event.Name)
		s.sink.StartSession()
	}
	return true
}
