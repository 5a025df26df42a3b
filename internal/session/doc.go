// Package session implements the session lifecycle engine.
//
// A session groups a burst of activity. It starts on the first
// [Manager.StartSession], survives gaps shorter than its grace period, and
// completes once activity has been absent for longer than that. Completed
// sessions are delivered exactly once to the listener passed to
// [Manager.Initialize].
//
// # Architecture
//
//   - [Session]: identity plus start/end times and a grace period frozen at creation.
//   - store: the ordered in-memory set with the current and previous
//     pointers. One mutex guards the set, both pointers, and every write to
//     the [persist.Store].
//   - [Manager]: feeds Start/End through a single-consumer command queue so
//     transitions happen in arrival order.
//   - [Watcher]: polls the store, removes expired sessions, and hands them
//     to the [Notifier] after releasing the mutex.
//   - [Notifier]: calls the manager's listener once per session from its
//     own goroutine, then publishes a [CompletedEvent] on an [event.Bus].
//     Managers sharing a bus each see only their own sessions through
//     their listener.
//
// # State Machine
//
//	Active --end--> Ended --resume--> Active
//	Ended --grace elapsed--> Expired (removed, terminal)
//
// # Crash Recovery
//
// Sessions loaded without an end time belonged to a process that died
// mid-session. Initialize ends them at load time; they are never resumed.
//
// # Basic Usage
//
//	mgr := session.NewManager(store, session.WithLogger(logger))
//	mgr.Initialize(func(s session.Session) {
//	    fmt.Println("completed", s.ID())
//	})
//	defer mgr.Close()
//
//	mgr.StartSession()
//	mgr.EndSession()
package session
