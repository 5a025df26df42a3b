package session

import (
	"time"

	"github.com/Iron-Ham/lull/internal/event"
	"github.com/Iron-Ham/lull/internal/logging"
)

// Option configures a Manager.
type Option func(*Manager)

// WithGracePeriod sets the grace period given to sessions created from now
// on. Existing sessions keep the value they were created with. Negative
// values are ignored.
func WithGracePeriod(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.gracePeriod = d
		}
	}
}

// WithPollInterval sets how often the watcher scans for expired sessions.
// Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithBus publishes completions on bus instead of a private one, so other
// subscribers can observe them. The Initialize listener is not a bus
// subscriber and only receives this manager's sessions.
func WithBus(bus *event.Bus) Option {
	return func(m *Manager) {
		if bus != nil {
			m.bus = bus
		}
	}
}
