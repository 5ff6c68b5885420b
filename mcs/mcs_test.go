package mcs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/mcslock/spin"
)

func TestLockUncontended(t *testing.T) {
	lock := NewLock()
	node := &QNode{}

	assert.True(t, lock.IsFree())
	lock.Lock(node)
	assert.False(t, lock.IsFree())
	assert.Same(t, node, lock.tail.Get())
	assert.False(t, node.blocked.Get(), "first holder never blocks")

	lock.Unlock(node)
	assert.True(t, lock.IsFree())
	assert.Nil(t, node.next.Get())
}

func TestLockConcurrentAccess(t *testing.T) {
	lock := NewLock(WithSpin(spin.Yield))
	const numGoroutines = 100
	const iterations = 500
	counter := 0
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			node := &QNode{}
			for iter := 0; iter < iterations; iter++ {
				lock.Lock(node)
				counter++
				lock.Unlock(node)
			}
		}()
	}
	wg.Wait()

	expected := numGoroutines * iterations
	assert.Equal(t, expected, counter, "Expected counter to be %d, got %d", expected, counter)
	assert.True(t, lock.IsFree())
}

func TestLockHandsOffToLinkedSuccessor(t *testing.T) {
	lock := NewLock(WithSpin(spin.Yield))
	holder, waiter := &QNode{}, &QNode{}
	lock.Lock(holder)

	acquired := make(chan struct{})
	go func() {
		lock.Lock(waiter)
		close(acquired)
	}()

	require.Eventually(t, func() bool { return holder.next.Get() == waiter },
		5*time.Second, 50*time.Microsecond, "waiter never linked behind holder")
	assert.True(t, waiter.blocked.Get())
	assert.Same(t, waiter, lock.tail.Get())

	select {
	case <-acquired:
		t.Fatal("waiter acquired while holder still owns the lock")
	case <-time.After(5 * time.Millisecond):
	}

	lock.Unlock(holder)
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not handed the lock")
	}
	assert.Nil(t, holder.next.Get(), "holder node must be reset for reuse")
	assert.False(t, waiter.blocked.Get())

	lock.Unlock(waiter)
	assert.True(t, lock.IsFree())
}

// TestUnlockWaitsForUnlinkedSuccessor drives the window in which a joiner has swapped
// itself into the tail but not yet linked behind the holder. Unlock's compare-and-exchange
// fails and it must wait for the link instead of leaving the joiner stranded.
func TestUnlockWaitsForUnlinkedSuccessor(t *testing.T) {
	lock := NewLock(WithSpin(spin.Yield))
	holder, joiner := &QNode{}, &QNode{}
	lock.Lock(holder)

	// First half of a Lock(joiner): tail exchange and blocked flag, but no link yet.
	joiner.next.Set(nil)
	pred := lock.tail.Exchange(joiner)
	require.Same(t, holder, pred)
	joiner.blocked.Set(true)

	released := make(chan struct{})
	go func() {
		lock.Unlock(holder)
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("Unlock returned before the successor linked itself")
	case <-time.After(10 * time.Millisecond):
	}
	assert.Same(t, joiner, lock.tail.Get(), "failed CAS must not clear the tail")

	pred.next.Set(joiner) // Joiner publishes its link.

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("Unlock never observed the successor link")
	}
	assert.False(t, joiner.blocked.Get(), "successor must be handed the lock")
	assert.Nil(t, holder.next.Get())

	lock.Unlock(joiner)
	assert.True(t, lock.IsFree())
}

func TestLockSpinStrategies(t *testing.T) {
	for _, s := range []spin.Strategy{spin.Busy, spin.Yield, spin.Backoff} {
		t.Run(s.String(), func(t *testing.T) {
			lock := NewLock(WithSpin(s))
			assert.Equal(t, s, lock.strategy)

			const numGoroutines = 4
			const iterations = 50
			counter := 0
			var wg sync.WaitGroup
			wg.Add(numGoroutines)
			for i := 0; i < numGoroutines; i++ {
				go func() {
					defer wg.Done()
					node := &QNode{}
					for iter := 0; iter < iterations; iter++ {
						lock.Lock(node)
						counter++
						lock.Unlock(node)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, numGoroutines*iterations, counter)
		})
	}
}

func TestLockStress(t *testing.T) {
	lock := NewLock(WithSpin(spin.Yield))
	const numGoroutines = 10
	const iterations = 1000
	var wg sync.WaitGroup

	start := time.Now()
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			node := &QNode{}
			for j := 0; j < iterations; j++ {
				lock.Lock(node)
				time.Sleep(time.Microsecond)
				lock.Unlock(node)
			}
		}()
	}

	wg.Wait()
	duration := time.Since(start)

	assert.Less(t, duration, 30*time.Second, "Lock stress test took too long: %v", duration)
}

// BenchmarkMutexUncontended tests mutex performance with no contention
func BenchmarkMutexUncontended(b *testing.B) {
	var mu sync.Mutex
	for i := 0; i < b.N; i++ {
		mu.Lock()
		mu.Unlock()
	}
}

// BenchmarkMCSLockUncontended tests MCS lock performance with no contention
func BenchmarkMCSLockUncontended(b *testing.B) {
	lock := NewLock()
	node := &QNode{}
	for i := 0; i < b.N; i++ {
		lock.Lock(node)
		lock.Unlock(node)
	}
}

func BenchmarkMCSMutexUncontended(b *testing.B) {
	var mu Mutex
	for i := 0; i < b.N; i++ {
		mu.Lock()
		mu.Unlock()
	}
}

// BenchmarkMutexContended tests mutex performance under contention
func BenchmarkMutexContended(b *testing.B) {
	var mu sync.Mutex
	shared := 0
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			mu.Lock()
			shared++
			mu.Unlock()
		}
	})
}

// BenchmarkMCSLockContended tests MCS lock performance under contention
func BenchmarkMCSLockContended(b *testing.B) {
	for _, s := range []spin.Strategy{spin.Busy, spin.Yield, spin.Backoff} {
		b.Run(s.String(), func(b *testing.B) {
			lock := NewLock(WithSpin(s))
			shared := 0
			b.RunParallel(func(pb *testing.PB) {
				node := &QNode{}
				for pb.Next() {
					lock.Lock(node)
					shared++
					lock.Unlock(node)
				}
			})
		})
	}
}

// BenchmarkMCSLockHeavyContention simulates heavy contention with work inside critical section
func BenchmarkMCSLockHeavyContention(b *testing.B) {
	lock := NewLock(WithSpin(spin.Yield))
	shared := 0
	b.RunParallel(func(pb *testing.PB) {
		node := &QNode{}
		for pb.Next() {
			lock.Lock(node)
			// Simulate some work inside critical section
			for i := 0; i < 100; i++ {
				shared++
			}
			lock.Unlock(node)
		}
	})
}
