// Package fence implements a generation fence: late results produced against
// an older generation are recognized and dropped instead of being applied to
// state that has since been reset.
package fence

import "sync"

// Guard tracks the current generation. The zero value is ready to use.
type Guard struct {
	mu        sync.Mutex
	gen       uint64
	cancelled bool
}

// Ticket captures the generation current at issue time.
type Ticket struct {
	guard *Guard
	gen   uint64
}

// Enter issues a ticket bound to the current generation.
func (g *Guard) Enter() Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Ticket{guard: g, gen: g.gen}
}

// Bump invalidates every outstanding ticket and starts a new generation.
func (g *Guard) Bump() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	g.cancelled = false
}

// Cancel invalidates outstanding tickets without starting a new generation;
// the next Bump re-arms the guard.
func (g *Guard) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = true
}

// Generation returns the current generation number.
func (g *Guard) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.gen
}

// Valid reports whether the ticket still belongs to the live generation.
func (t Ticket) Valid() bool {
	if t.guard == nil {
		return false
	}
	t.guard.mu.Lock()
	defer t.guard.mu.Unlock()

	return t.gen == t.guard.gen && !t.guard.cancelled
}

// Do runs fn only if the ticket is still valid, holding the guard so no Bump
// or Cancel can slip in between the check and fn. It reports whether fn ran.
func (t Ticket) Do(fn func()) bool {
	if t.guard == nil {
		return false
	}
	t.guard.mu.Lock()
	defer t.guard.mu.Unlock()
	if t.gen != t.guard.gen || t.guard.cancelled {
		return false
	}
	fn()

	return true
}
