package atomiccell

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct{ n int }

func TestPointerZeroValueIsEmpty(t *testing.T) {
	var c Pointer[payload]
	assert.Nil(t, c.Get())
	assert.True(t, c.CompareAndExchange(nil, nil))
}

func TestPointerOperations(t *testing.T) {
	var c Pointer[payload]
	a, b := &payload{n: 1}, &payload{n: 2}

	c.Set(a)
	assert.Same(t, a, c.Get())

	prev := c.Exchange(b)
	assert.Same(t, a, prev)
	assert.Same(t, b, c.Get())

	assert.False(t, c.CompareAndExchange(a, nil), "stale expected value must not swap")
	assert.Same(t, b, c.Get())

	assert.True(t, c.CompareAndExchange(b, nil))
	assert.Nil(t, c.Get())
}

func TestPointerCompareIsByIdentity(t *testing.T) {
	var c Pointer[payload]
	stored := &payload{n: 7}
	lookalike := &payload{n: 7}
	c.Set(stored)

	require.Equal(t, *stored, *lookalike)
	assert.False(t, c.CompareAndExchange(lookalike, nil), "equal fields, different allocation")
	assert.True(t, c.CompareAndExchange(stored, nil))
}

func TestPointerExchangeIsLinearizable(t *testing.T) {
	// Every goroutine swaps its own pointer in. Each value must come back out of
	// Exchange exactly once (or remain as the final value), otherwise two exchanges
	// observed the same previous value.
	const numGoroutines = 64
	var c Pointer[payload]
	nodes := make([]*payload, numGoroutines)
	for i := range nodes {
		nodes[i] = &payload{n: i}
	}

	seen := make(chan *payload, numGoroutines)
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(p *payload) {
			defer wg.Done()
			seen <- c.Exchange(p)
		}(nodes[i])
	}
	wg.Wait()
	close(seen)

	counts := make(map[*payload]int)
	nils := 0
	for p := range seen {
		if p == nil {
			nils++
			continue
		}
		counts[p]++
	}
	assert.Equal(t, 1, nils, "exactly one goroutine finds the cell empty")
	for p, n := range counts {
		assert.Equal(t, 1, n, "value %d returned %d times", p.n, n)
	}
	_, lastReturned := counts[c.Get()]
	assert.False(t, lastReturned, "final value must never have been displaced")
	assert.Len(t, counts, numGoroutines-1)
}

func TestBoolOperations(t *testing.T) {
	var b Bool
	assert.False(t, b.Get())

	b.Set(true)
	assert.True(t, b.Get())

	assert.True(t, b.Exchange(false))
	assert.False(t, b.Get())

	assert.False(t, b.CompareAndExchange(true, true))
	assert.True(t, b.CompareAndExchange(false, true))
	assert.True(t, b.Get())
}

func TestBoolCompareAndExchangeSingleWinner(t *testing.T) {
	const numGoroutines = 100
	var (
		b    Bool
		wins sync.WaitGroup
		mu   sync.Mutex
		won  int
	)
	wins.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wins.Done()
			if b.CompareAndExchange(false, true) {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wins.Wait()
	assert.Equal(t, 1, won)
}

func BenchmarkPointerExchange(b *testing.B) {
	var c Pointer[payload]
	p := &payload{}
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.Exchange(p)
		}
	})
}

func BenchmarkBoolGet(b *testing.B) {
	var c Bool
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = c.Get()
		}
	})
}
