package coap

import "time"

// Timer is a cancellable one-shot timer, as scheduled by a Mainloop.
type Timer interface {
	// Stop cancels the timer. It reports false if the timer already fired
	// or was already stopped.
	Stop() bool
}

// Mainloop is the external scheduling collaborator the engine runs on: it
// need only provide one-shot timers. Socket readiness is handled directly
// via blocking reads on its own goroutine (see Server.readLoop) rather than
// through idle/fd-watcher callbacks, which is the idiomatic Go rendering of
// "the mainloop provides fd watchers": the Go runtime's netpoller already
// plays that role under ReadFrom.
type Mainloop interface {
	// After schedules f to run once, no sooner than d from now.
	After(d time.Duration, f func()) Timer
}

type timeTimer struct{ t *time.Timer }

func (t timeTimer) Stop() bool { return t.t.Stop() }

// goMainloop is the default Mainloop, backed directly by time.AfterFunc.
type goMainloop struct{}

func (goMainloop) After(d time.Duration, f func()) Timer {
	return timeTimer{time.AfterFunc(d, f)}
}

// DefaultMainloop is the Mainloop used when a Server is constructed without
// an explicit one.
var DefaultMainloop Mainloop = goMainloop{}
