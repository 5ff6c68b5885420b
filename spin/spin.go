// Package spin provides the wait strategies used by the busy-waiting locks in this
// module. A lock polls a condition in a loop and calls Waiter.Wait after every failed
// poll; the strategy decides what, if anything, happens between polls.
//
// Busy is the default everywhere. It never yields and never backs off, which keeps the
// observable behavior of a textbook queue lock: the lowest possible hand-off latency at
// the cost of a fully occupied core per waiter. Yield and Backoff are opt-in variants for
// oversubscribed machines (more spinning goroutines than GOMAXPROCS).
package spin

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/valyala/fastrand"
)

// Strategy selects how a Waiter behaves between polls.
type Strategy uint8

const (
	// Busy polls in a tight loop with no pause between polls.
	Busy Strategy = iota
	// Yield calls runtime.Gosched between polls, letting other goroutines on the
	// same P run.
	Yield
	// Backoff spins for an exponentially growing, jittered number of iterations
	// between polls and starts yielding once the ceiling is reached.
	Backoff
)

// ErrUnknownStrategy is returned by ParseStrategy for unrecognised names.
var ErrUnknownStrategy = errors.New("unknown spin strategy")

const (
	backoffStart = 4
	backoffLimit = 1 << 10
)

// String returns the flag name of the strategy.
func (s Strategy) String() string {
	switch s {
	case Busy:
		return "busy"
	case Yield:
		return "yield"
	case Backoff:
		return "backoff"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// ParseStrategy maps a flag value (busy, yield, backoff) to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "busy", "":
		return Busy, nil
	case "yield":
		return Yield, nil
	case "backoff":
		return Backoff, nil
	}
	return Busy, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Waiter tracks the state of a single wait. It is not safe for concurrent use; each
// spinning goroutine creates its own on the stack.
type Waiter struct {
	strategy Strategy
	spins    uint64
	delay    uint32
}

// NewWaiter returns a Waiter for the strategy.
func NewWaiter(s Strategy) Waiter { return Waiter{strategy: s, delay: backoffStart} }

// Wait is called once after each failed poll.
func (w *Waiter) Wait() {
	w.spins++
	switch w.strategy {
	case Yield:
		runtime.Gosched()
	case Backoff:
		if w.delay == 0 {
			w.delay = backoffStart
		}
		if w.delay >= backoffLimit {
			runtime.Gosched()
			return
		}
		// Jitter keeps waiters that started together from polling in lockstep.
		n := w.delay/2 + fastrand.Uint32n(w.delay)
		for i := uint32(0); i < n; i++ {
			// Empty spin loop.
		}
		w.delay <<= 1
	}
}

// Spins returns how many failed polls this Waiter has seen.
func (w *Waiter) Spins() uint64 { return w.spins }
