// Package event provides a small synchronous pub-sub bus used to deliver
// session lifecycle notifications to listeners without coupling the session
// engine to them.
//
// Handlers are called in registration order on the publishing goroutine.
// A panicking handler is recovered and logged; it never prevents delivery
// to the remaining handlers.
//
//	bus := event.NewBus(logger)
//	bus.Subscribe("session.completed", func(e event.Event) { ... })
//	bus.Publish(evt)
package event
