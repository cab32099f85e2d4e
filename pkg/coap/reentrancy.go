package coap

// guard protects a context from being freed while one of its callbacks is
// executing. The dispatcher wraps every callback invocation in enter;
// a callback that asks to free its own context (via free) only
// triggers the actual free once the outermost enter unwinds,
// which is what lets a reply callback safely call CancelSend on itself.
type guard struct {
	inUse     bool
	deleteMe  bool
	onDeleted func()
}

// enter marks the guard in-use for the duration of fn. Re-entrant calls
// (fn triggering another dispatch that touches the same guard) nest
// correctly because inUse is restored to its prior value on exit rather
// than unconditionally cleared.
func (g *guard) enter(fn func()) {
	prev := g.inUse
	g.inUse = true
	fn()
	g.inUse = prev
	if !g.inUse && g.deleteMe && g.onDeleted != nil {
		cb := g.onDeleted
		g.onDeleted = nil
		cb()
	}
}

// free requests that the guarded context be released. If no callback is
// currently executing it runs onDeleted immediately; otherwise it is
// deferred to the end of the current enter().
func (g *guard) free(onDeleted func()) {
	g.deleteMe = true
	g.onDeleted = onDeleted
	if !g.inUse {
		cb := g.onDeleted
		g.onDeleted = nil
		cb()
	}
}

// pendingFree reports whether free has been requested but not yet run.
func (g *guard) pendingFree() bool { return g.deleteMe }
