// Package atomiccell provides single-value cells that many goroutines can read and
// modify concurrently without a mutex.
//
// Every operation maps onto one hardware atomic instruction (load, store, XCHG or
// CMPXCHG / LDAXR-STLXR loops on arm64). Go's sync/atomic operations are sequentially
// consistent, which is strictly stronger than acquire-on-load and release-on-store, so
// a Set that publishes state is always observed, together with every write that preceded
// it, by a later Get on another goroutine.
//
// The cells are the building blocks of the queue lock in package mcs:
//   - Pointer holds the lock's tail and each node's forward link
//   - Bool holds each node's blocked flag
//
// Zero values are ready to use. Cells must not be copied after first use.
package atomiccell

import "sync/atomic"

// Pointer is an atomic cell holding a *T. Comparison is by identity: two pointers are
// equal only when they reference the same allocation, regardless of field values.
type Pointer[T any] struct {
	_ noCopy
	v atomic.Pointer[T]
}

// Get returns the current value.
func (c *Pointer[T]) Get() *T { return c.v.Load() }

// Set replaces the current value.
func (c *Pointer[T]) Set(v *T) { c.v.Store(v) }

// Exchange stores v and returns the value it replaced.
func (c *Pointer[T]) Exchange(v *T) *T { return c.v.Swap(v) }

// CompareAndExchange stores newValue only if the cell currently holds expected.
// It reports whether the swap happened.
func (c *Pointer[T]) CompareAndExchange(expected, newValue *T) bool {
	return c.v.CompareAndSwap(expected, newValue)
}

// Bool is an atomic boolean cell. It is stored as a uint32 so that the spin loop polling
// it compiles to a plain aligned load.
type Bool struct {
	_ noCopy
	v atomic.Uint32
}

// Get returns the current value.
func (c *Bool) Get() bool { return c.v.Load() != 0 }

// Set replaces the current value.
func (c *Bool) Set(v bool) { c.v.Store(b32(v)) }

// Exchange stores v and returns the previous value.
func (c *Bool) Exchange(v bool) bool { return c.v.Swap(b32(v)) != 0 }

// CompareAndExchange stores newValue only if the cell currently holds expected.
func (c *Bool) CompareAndExchange(expected, newValue bool) bool {
	return c.v.CompareAndSwap(b32(expected), b32(newValue))
}

func b32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// noCopy may be embedded into structs which must not be copied after first use.
// See https://golang.org/issues/8005#issuecomment-190753527 for details; go vet's
// copylocks check recognises the Lock/Unlock methods.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
