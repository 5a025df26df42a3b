package session

import (
	"context"
	"sync"
	"time"

	lullerrors "github.com/Iron-Ham/lull/internal/errors"
	"github.com/Iron-Ham/lull/internal/logging"
	"github.com/Iron-Ham/lull/internal/persist"
)

// startOutcome describes what a start request did.
type startOutcome int

const (
	startIgnored startOutcome = iota
	startResumed
	startCreated
)

func (o startOutcome) String() string {
	switch o {
	case startResumed:
		return "resumed"
	case startCreated:
		return "created"
	default:
		return "ignored"
	}
}

// store is the in-memory session set. Every method takes mu, and every
// write to the persister happens with mu held so the file always reflects
// a consistent snapshot.
type store struct {
	mu        sync.Mutex
	sessions  []*Session
	current   *Session
	previous  *Session
	dirty     bool
	persister persist.Store
	logger    *logging.Logger
}

func newStore(persister persist.Store, logger *logging.Logger) *store {
	return &store{
		persister: persister,
		logger:    logger,
	}
}

// start resumes a non-expired previous session or creates a new one. It
// does nothing while a current session exists.
func (s *store) start(ctx context.Context, now time.Time, gracePeriod time.Duration) (Session, startOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return *s.current, startIgnored
	}

	if s.previous != nil && !s.previous.IsExpired(now) {
		s.previous.resume()
		s.current, s.previous = s.previous, nil
		s.persistLocked(ctx)
		return *s.current, startResumed
	}

	sess := newSession(now, gracePeriod)
	s.sessions = append(s.sessions, sess)
	s.current, s.previous = sess, nil
	s.persistLocked(ctx)
	return *sess, startCreated
}

// end marks the current session ended and demotes it to previous.
func (s *store) end(ctx context.Context, now time.Time) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Session{}, false
	}

	s.current.end(now)
	s.current, s.previous = nil, s.current
	s.persistLocked(ctx)
	return *s.previous, true
}

// expire removes every session past its grace period and returns them in
// store order. The set is written at most once per call: when something was
// removed, or when an earlier write failed.
func (s *store) expire(ctx context.Context, now time.Time) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Session
	kept := s.sessions[:0]
	for _, sess := range s.sessions {
		if !sess.IsExpired(now) {
			kept = append(kept, sess)
			continue
		}
		expired = append(expired, *sess)
		if s.previous == sess {
			s.previous = nil
		}
	}
	for i := len(kept); i < len(s.sessions); i++ {
		s.sessions[i] = nil
	}
	s.sessions = kept

	if len(expired) > 0 || s.dirty {
		s.persistLocked(ctx)
	}
	return expired
}

// load appends persisted sessions. Sessions without an end time were cut
// short by a crash and are ended at now; they are never made current or
// previous. It returns how many sessions were loaded and recovered.
func (s *store) load(ctx context.Context, records []persist.Record, now time.Time) (loaded, recovered int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		sess := FromRecord(rec)
		if sess.IsActive() {
			end := now
			if end.Before(sess.startTime) {
				end = sess.startTime
			}
			sess.end(end)
			recovered++
		}
		s.sessions = append(s.sessions, &sess)
	}

	if recovered > 0 {
		s.persistLocked(ctx)
	}
	return len(records), recovered
}

// flush retries a failed write. It reports whether the persisted set is
// up to date.
func (s *store) flush(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return true
	}
	return s.persistLocked(ctx) == nil
}

func (s *store) persistLocked(ctx context.Context) error {
	records := make([]persist.Record, len(s.sessions))
	for i, sess := range s.sessions {
		records[i] = sess.Record()
	}

	if err := s.persister.Save(context.WithoutCancel(ctx), records); err != nil {
		s.dirty = true
		logStorageError(s.logger, "failed to persist sessions", err, "sessions", len(records))
		return err
	}

	if s.dirty {
		s.logger.Info("persisted sessions after earlier failure", "sessions", len(records))
	}
	s.dirty = false
	return nil
}

func (s *store) snapshot() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = *sess
	}
	return out
}

func (s *store) currentSession() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

func (s *store) previousSession() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.previous == nil {
		return Session{}, false
	}
	return *s.previous, true
}

func (s *store) isDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// logStorageError logs err at the level its severity calls for.
func logStorageError(logger *logging.Logger, msg string, err error, args ...any) {
	args = append(args, "error", err)
	if kind, ok := lullerrors.KindOf(err); ok {
		args = append(args, "kind", kind.String())
	}
	if lullerrors.IsRetryable(err) {
		args = append(args, "retryable", true)
	}

	switch lullerrors.GetSeverity(err) {
	case lullerrors.SeverityDebug:
		logger.Debug(msg, args...)
	case lullerrors.SeverityInfo:
		logger.Info(msg, args...)
	case lullerrors.SeverityWarning:
		logger.Warn(msg, args...)
	default:
		logger.Error(msg, args...)
	}
}
