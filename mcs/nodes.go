package mcs

import (
	"sync"
	"sync/atomic"

	"github.com/ahrav/mcslock/internal/goid"
)

// nodeTable hands each goroutine its own long-lived QNode.
//
// Entries are keyed by goroutine id. A goroutine only ever stores under its own id, so
// the first Load miss is the only time a node is created for it. Go has no hook for
// goroutine exit; nodes of finished goroutines stay in the table until forget or prune
// removes them.
type nodeTable struct {
	nodes sync.Map // int64 -> tableEntry
	epoch atomic.Uint64
}

type tableEntry struct {
	node  *QNode
	epoch uint64 // table epoch when the entry was created
}

// current returns the calling goroutine's node, creating it on first use.
func (t *nodeTable) current() *QNode {
	id := goid.Get()
	if e, ok := t.nodes.Load(id); ok {
		return e.(tableEntry).node
	}
	e := tableEntry{node: new(QNode), epoch: t.epoch.Load()}
	t.nodes.Store(id, e)
	return e.node
}

// forget drops the calling goroutine's node.
func (t *nodeTable) forget() { t.nodes.Delete(goid.Get()) }

// prune drops the nodes of goroutines that have exited and returns how many were removed.
//
// The epoch is advanced before the live goroutines are listed. An entry stamped with an
// older epoch was created by a goroutine that already existed when the list was taken, so
// if its id is missing from the list that goroutine has finished. Entries created during
// the prune carry the new epoch and are left alone. Goroutine ids are never reused.
func (t *nodeTable) prune() int {
	epoch := t.epoch.Add(1)
	live := goid.Live()
	alive := make(map[int64]struct{}, len(live))
	for _, id := range live {
		alive[id] = struct{}{}
	}

	removed := 0
	t.nodes.Range(func(key, value any) bool {
		if value.(tableEntry).epoch >= epoch {
			return true
		}
		id := key.(int64)
		if _, ok := alive[id]; ok {
			return true
		}
		t.nodes.Delete(id)
		removed++
		return true
	})
	return removed
}

// size returns the number of cached nodes.
func (t *nodeTable) size() int {
	n := 0
	t.nodes.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
