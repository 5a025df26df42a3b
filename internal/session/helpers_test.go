package session

import (
	"context"
	"sync"
	"time"

	lullerrors "github.com/Iron-Ham/lull/internal/errors"
	"github.com/Iron-Ham/lull/internal/persist"
)

// epoch is an arbitrary whole-millisecond instant used as t=0.
var epoch = time.UnixMilli(1_700_000_000_000)

// at returns epoch plus ms milliseconds.
func at(ms int64) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// memPersister is an in-memory persist.Store whose writes can be made to fail.
type memPersister struct {
	mu       sync.Mutex
	records  []persist.Record
	saves    int
	failSave bool
	loadErr  error
}

func (p *memPersister) Save(_ context.Context, records []persist.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failSave {
		return lullerrors.NewStorageError(lullerrors.KindWriteFailure, "write sessions", lullerrors.New("disk full"))
	}
	p.records = append([]persist.Record(nil), records...)
	p.saves++
	return nil
}

func (p *memPersister) Load(context.Context) ([]persist.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]persist.Record(nil), p.records...), p.loadErr
}

func (p *memPersister) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failSave = fail
}

func (p *memPersister) saved() ([]persist.Record, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]persist.Record(nil), p.records...), p.saves
}

// recorder collects completions delivered to a listener.
type recorder struct {
	mu       sync.Mutex
	sessions []Session
}

func (r *recorder) listener(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
}

func (r *recorder) completed() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Session(nil), r.sessions...)
}

func ids(sessions []Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID()
	}
	return out
}

func int64Ptr(v int64) *int64 { return &v }
