// Package alock implements an array-based (Anderson) lock, providing fair mutual exclusion
// for a bounded number of goroutines. Waiters take consecutive slots in a circular array
// and each one spins on its own slot's flag, so like an MCS lock it avoids a shared polling
// location, but its memory is fixed up front instead of growing with the number of waiters.
//
// Example usage:
//
//	lock := alock.NewArrayLock(8) // Up to 8 goroutines may wait at once
//
//	lock.Lock()
//	// ... critical section ...
//	lock.Unlock()
//
// The capacity must be at least the maximum number of goroutines that can contend for the
// lock at the same time. With more contenders, two waiters share a slot and both may enter
// the critical section together.
package alock

import (
	"math/bits"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/ahrav/mcslock/spin"
)

// slot is one waiter position, padded to its own cache line.
type slot struct {
	ready atomic.Uint32 // 1 when the goroutine holding this slot may enter
	_     cpu.CacheLinePad
}

// ArrayLock is an Anderson queue lock.
type ArrayLock struct {
	slots    []slot
	mask     uint32
	_        cpu.CacheLinePad
	tail     atomic.Uint32 // Next slot ticket to hand out
	_        cpu.CacheLinePad
	holder   uint32 // Slot of the current holder; written and read only while holding the lock
	strategy spin.Strategy
}

// Option configures an ArrayLock.
type Option func(*ArrayLock)

// WithSpin sets the wait strategy used while spinning on a slot.
func WithSpin(s spin.Strategy) Option {
	return func(al *ArrayLock) { al.strategy = s }
}

// NewArrayLock initializes a new array lock with room for capacity concurrent goroutines.
// capacity is rounded up to a power of two so that slot tickets can wrap around without
// skipping a slot. It panics if capacity is zero or larger than 1<<31.
func NewArrayLock(capacity uint32, opts ...Option) *ArrayLock {
	if capacity == 0 || capacity > 1<<31 {
		panic("alock: capacity must be in [1, 1<<31]")
	}
	size := uint32(1) << bits.Len32(capacity-1)

	al := &ArrayLock{
		slots: make([]slot, size),
		mask:  size - 1,
	}
	al.slots[0].ready.Store(1) // The first ticket may enter immediately
	for _, opt := range opts {
		opt(al)
	}
	return al
}

// Lock acquires the lock for the calling goroutine.
func (al *ArrayLock) Lock() {
	// Atomically take a ticket and map it onto a slot.
	s := (al.tail.Add(1) - 1) & al.mask

	w := spin.NewWaiter(al.strategy)
	for al.slots[s].ready.Load() == 0 {
		w.Wait()
	}
	al.holder = s
}

// Unlock releases the lock, allowing the goroutine in the next slot to acquire it.
func (al *ArrayLock) Unlock() {
	s := al.holder

	// Rearm our slot for the ticket that will map onto it a full lap from now.
	al.slots[s].ready.Store(0)
	al.slots[(s+1)&al.mask].ready.Store(1)
}

// Capacity returns the number of slots.
func (al *ArrayLock) Capacity() int { return len(al.slots) }
