// Package metrics exports Prometheus metrics for locks.
//
// The locks themselves are never instrumented; Instrument wraps any sync.Locker so that
// measurement cost is only paid where it is wanted.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds the lock metrics. Every series is labelled with the lock name.
type Collectors struct {
	// Acquisitions counts completed Lock calls.
	Acquisitions *prometheus.CounterVec
	// WaitSeconds observes the time spent inside Lock.
	WaitSeconds *prometheus.HistogramVec
	// HoldSeconds observes the time between Lock returning and Unlock being called.
	HoldSeconds *prometheus.HistogramVec
}

// lockBuckets spans 100ns to roughly 1.7s.
var lockBuckets = prometheus.ExponentialBuckets(1e-7, 4, 13)

// NewCollectors creates unregistered collectors.
func NewCollectors() *Collectors {
	return &Collectors{
		Acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcslock_acquisitions_total",
			Help: "Total number of lock acquisitions",
		}, []string{"lock"}),
		WaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcslock_wait_seconds",
			Help:    "Time spent waiting to acquire the lock",
			Buckets: lockBuckets,
		}, []string{"lock"}),
		HoldSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcslock_hold_seconds",
			Help:    "Time the lock was held",
			Buckets: lockBuckets,
		}, []string{"lock"}),
	}
}

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Register creates collectors and registers them on reg. It panics if they are already
// registered.
func Register(reg prometheus.Registerer) *Collectors {
	c := NewCollectors()
	reg.MustRegister(c.Acquisitions, c.WaitSeconds, c.HoldSeconds)
	return c
}

// Instrument returns a sync.Locker that forwards to l and records metrics under name.
func Instrument(name string, l sync.Locker, c *Collectors) sync.Locker {
	return &instrumented{
		inner:        l,
		acquisitions: c.Acquisitions.WithLabelValues(name),
		wait:         c.WaitSeconds.WithLabelValues(name),
		hold:         c.HoldSeconds.WithLabelValues(name),
	}
}

type instrumented struct {
	inner        sync.Locker
	acquisitions prometheus.Counter
	wait         prometheus.Observer
	hold         prometheus.Observer
	acquiredAt   atomic.Int64 // UnixNano of the last acquisition
}

func (i *instrumented) Lock() {
	start := time.Now()
	i.inner.Lock()
	now := time.Now()
	i.acquiredAt.Store(now.UnixNano())
	i.acquisitions.Inc()
	i.wait.Observe(now.Sub(start).Seconds())
}

func (i *instrumented) Unlock() {
	held := time.Duration(time.Now().UnixNano() - i.acquiredAt.Load())
	i.hold.Observe(held.Seconds())
	i.inner.Unlock()
}
