package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/lull/internal/persist"
)

// DefaultGracePeriod is how long an ended session stays resumable.
const DefaultGracePeriod = 15 * time.Second

// Session is a bounded period of activity. The zero end time marks an
// active session. Values returned by the package are copies; mutating
// transitions happen only inside the store.
type Session struct {
	id          string
	startTime   time.Time
	endTime     time.Time
	gracePeriod time.Duration
}

func newSession(now time.Time, gracePeriod time.Duration) *Session {
	return &Session{
		id:          uuid.NewString(),
		startTime:   now,
		gracePeriod: gracePeriod,
	}
}

// ID returns the session's unique identifier.
func (s Session) ID() string { return s.id }

// StartTime returns when the session was created.
func (s Session) StartTime() time.Time { return s.startTime }

// EndTime returns when the session ended and false if it is still active.
func (s Session) EndTime() (time.Time, bool) {
	return s.endTime, !s.endTime.IsZero()
}

// GracePeriod returns the grace period frozen at creation.
func (s Session) GracePeriod() time.Duration { return s.gracePeriod }

// IsActive reports whether the session is accumulating activity.
func (s Session) IsActive() bool { return s.endTime.IsZero() }

// IsExpired reports whether the session ended more than its grace period
// before now.
func (s Session) IsExpired(now time.Time) bool {
	if s.IsActive() {
		return false
	}
	return now.Sub(s.endTime) > s.gracePeriod
}

// Duration returns the time between start and end, or zero while active.
func (s Session) Duration() time.Duration {
	if s.IsActive() {
		return 0
	}
	return s.endTime.Sub(s.startTime)
}

func (s Session) String() string {
	if s.IsActive() {
		return fmt.Sprintf("session %s (active since %s)", s.id, s.startTime.Format(time.RFC3339))
	}
	return fmt.Sprintf("session %s (%s, ended %s)", s.id, s.Duration(), s.endTime.Format(time.RFC3339))
}

func (s *Session) end(now time.Time) {
	s.endTime = now
}

func (s *Session) resume() {
	s.endTime = time.Time{}
}

// Record converts the session to its persisted form.
func (s Session) Record() persist.Record {
	rec := persist.Record{
		ID:          s.id,
		StartTime:   s.startTime.UnixMilli(),
		GracePeriod: s.gracePeriod.Milliseconds(),
	}
	if end, ok := s.EndTime(); ok {
		ms := end.UnixMilli()
		rec.EndTime = &ms
	}
	return rec
}

// FromRecord rebuilds a session from its persisted form.
func FromRecord(rec persist.Record) Session {
	s := Session{
		id:          rec.ID,
		startTime:   time.UnixMilli(rec.StartTime),
		gracePeriod: time.Duration(rec.GracePeriod) * time.Millisecond,
	}
	if rec.EndTime != nil {
		s.endTime = time.UnixMilli(*rec.EndTime)
	}
	return s
}

// Clock supplies the current time. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// truncate drops sub-millisecond precision and the monotonic reading so
// in-memory times equal their persisted form.
func truncate(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}
