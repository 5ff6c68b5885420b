package mcs

import "sync"

// Mutex is an MCS lock that keeps one queue node per goroutine, so callers do not pass
// nodes around. *Mutex implements sync.Locker.
//
// The zero value is an unlocked Mutex that busy-waits. Each Mutex has its own tail and
// its own node table; separate instances never interact.
//
// Looking up the caller's node reads the goroutine id, which costs a short stack walk
// on every Acquire and Release. Hot loops that already own a node should use Lock directly.
type Mutex struct {
	lock  Lock
	nodes nodeTable
}

var _ sync.Locker = (*Mutex)(nil)

// NewMutex creates a new goroutine-local MCS lock.
func NewMutex(opts ...Option) *Mutex {
	m := new(Mutex)
	m.lock.apply(opts)
	return m
}

// Acquire blocks, spinning, until the calling goroutine owns the lock.
// The caller must not already hold m.
func (m *Mutex) Acquire() { m.lock.Lock(m.nodes.current()) }

// Release hands the lock to the next waiter, or frees it if there is none.
// It must be called exactly once per Acquire, by the goroutine that acquired.
func (m *Mutex) Release() { m.lock.Unlock(m.nodes.current()) }

// Lock is Acquire.
func (m *Mutex) Lock() { m.Acquire() }

// Unlock is Release.
func (m *Mutex) Unlock() { m.Release() }

// IsFree returns true if no goroutine holds or awaits the lock.
func (m *Mutex) IsFree() bool { return m.lock.IsFree() }

// Forget discards the calling goroutine's queue node. A goroutine that is about to exit
// after its last Release may call it to return the node to the garbage collector. The
// caller must not hold or be waiting for m; a later Acquire allocates a fresh node.
func (m *Mutex) Forget() { m.nodes.forget() }

// Prune discards the queue nodes of goroutines that have exited and reports how many were
// removed. It stops the world briefly to enumerate goroutines, so call it rarely, for
// example after a batch of short-lived workers has finished.
func (m *Mutex) Prune() int { return m.nodes.prune() }
