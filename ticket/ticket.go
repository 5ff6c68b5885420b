// Package ticket provides a fair mutual exclusion lock implementation using a ticket-based
// queuing system. The Lock type ensures FIFO ordering of lock acquisition by handing out
// increasing ticket numbers and serving them in order.
//
// Unlike an MCS lock, every waiter polls the same shared counter, so each Unlock
// invalidates the cache line of every spinning goroutine. It is kept as a comparison
// baseline for the queue lock in package mcs.
package ticket

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/ahrav/mcslock/spin"
)

// Lock implements a fair mutual exclusion lock using a ticket-based queuing system.
//
// The internal implementation uses two counters:
//   - next: the next ticket to hand out
//   - serving: the ticket currently allowed into the critical section
//
// The lock is free when next == serving. Both counters wrap around; only their
// difference matters.
type Lock struct {
	_        cpu.CacheLinePad
	next     atomic.Uint32
	_        cpu.CacheLinePad
	serving  atomic.Uint32
	_        cpu.CacheLinePad
	strategy spin.Strategy
}

// Option configures a Lock.
type Option func(*Lock)

// WithSpin sets the wait strategy used between polls of the serving counter.
func WithSpin(s spin.Strategy) Option {
	return func(t *Lock) { t.strategy = s }
}

// NewLock creates a new ticket lock.
func NewLock(opts ...Option) *Lock {
	t := new(Lock)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ticketBaseWait is the number of empty iterations spent per queue position ahead of us
// before polling again.
const ticketBaseWait uint32 = 10

// Lock acquires the lock. Waiters far back in the queue poll less often, proportionally to
// their distance from the ticket being served.
func (t *Lock) Lock() {
	myTicket := t.next.Add(1) - 1 // Get our ticket

	// Fast path for uncontended case
	if t.serving.Load() == myTicket {
		return
	}

	w := spin.NewWaiter(t.strategy)
	for {
		cur := t.serving.Load()
		if cur == myTicket {
			return
		}
		// How many people are in front of us?
		if distance := queueDistance(cur, myTicket); distance > 1 {
			for i, n := uint32(0), distance*ticketBaseWait; i < n; i++ {
				// Empty spin loop.
			}
		}
		w.Wait()
	}
}

// Unlock releases the lock.
func (t *Lock) Unlock() { t.serving.Add(1) }

// isFree checks if the lock is free.
func (t *Lock) isFree() bool { return t.next.Load() == t.serving.Load() }

// queueDistance returns how many tickets are served before mine, modulo 2^32.
func queueDistance(serving, mine uint32) uint32 { return mine - serving }
