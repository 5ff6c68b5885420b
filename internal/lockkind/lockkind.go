// Package lockkind maps lock names used on the command line to sync.Locker
// implementations, so the demo and the benchmark harness can swap the queue lock for a
// baseline without knowing the concrete types.
package lockkind

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/mcslock/alock"
	"github.com/ahrav/mcslock/mcs"
	"github.com/ahrav/mcslock/spin"
	"github.com/ahrav/mcslock/ticket"
)

// Kind names a lock implementation.
type Kind string

const (
	MCS    Kind = "mcs"    // mcs.Mutex
	Mutex  Kind = "mutex"  // sync.Mutex, the native baseline
	Ticket Kind = "ticket" // ticket.Lock
	Array  Kind = "array"  // alock.ArrayLock
	None   Kind = "none"   // no mutual exclusion at all
)

// ErrUnknownKind is returned for names that do not match a Kind.
var ErrUnknownKind = errors.New("unknown lock kind")

// All lists every kind that provides mutual exclusion, in display order.
var All = []Kind{MCS, Mutex, Ticket, Array}

// Config carries the settings shared by every kind.
type Config struct {
	Spin spin.Strategy
	// Contenders bounds the number of goroutines that can wait at once. Only the
	// array lock needs it.
	Contenders int
}

// Parse returns the Kind for name, ignoring case and surrounding space.
func Parse(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	switch k {
	case MCS, Mutex, Ticket, Array, None:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// ParseList parses a comma separated list of kinds.
func ParseList(list string) ([]Kind, error) {
	var kinds []Kind
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		k, err := Parse(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrUnknownKind)
	}
	return kinds, nil
}

// New builds a fresh, unlocked locker of kind k.
func New(k Kind, cfg Config) (sync.Locker, error) {
	switch k {
	case MCS:
		return mcs.NewMutex(mcs.WithSpin(cfg.Spin)), nil
	case Mutex:
		return new(sync.Mutex), nil
	case Ticket:
		return ticket.NewLock(ticket.WithSpin(cfg.Spin)), nil
	case Array:
		if cfg.Contenders <= 0 {
			return nil, fmt.Errorf("array lock needs a positive contender count, got %d", cfg.Contenders)
		}
		return alock.NewArrayLock(uint32(cfg.Contenders), alock.WithSpin(cfg.Spin)), nil
	case None:
		return noLock{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
}

// noLock satisfies sync.Locker without excluding anyone. Running a workload with it shows
// that the atomicity check can fail.
type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}
