// Package workload runs the critical-section exercise used by the demo: several workers
// repeatedly take a lock and append one value several times in a row to a shared
// sequence. If the lock provides mutual exclusion, every run of appended values is
// uniform; if it does not, runs from different workers interleave and Verify reports it.
package workload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fastrand"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/ahrav/mcslock/internal/workload")

var (
	// ErrNotAtomic reports that two critical sections overlapped.
	ErrNotAtomic = errors.New("critical section was not executed atomically")
	// ErrLength reports a sequence whose length does not match the configuration.
	ErrLength = errors.New("unexpected sequence length")
	// ErrConfig reports an unusable Config.
	ErrConfig = errors.New("invalid workload config")
)

// DefaultItems is the number of appends per critical section: a (v, v) pair.
const DefaultItems = 2

// Config describes one run.
type Config struct {
	Workers     int           // concurrent goroutines
	Repetitions int           // critical sections per worker
	Items       int           // appends per critical section; DefaultItems when zero
	Delay       time.Duration // pause between appends inside the critical section
	// Seed selects random values in [0, 2000] instead of the default values, which are
	// unique per (worker, repetition). Random values can repeat across workers, which
	// hides an interleaving of two equal runs.
	Seed uint32
}

func (c Config) items() int {
	if c.Items <= 0 {
		return DefaultItems
	}
	return c.Items
}

// Total returns the number of entries a complete run appends.
func (c Config) Total() int { return c.Workers * c.Repetitions * c.items() }

// Validate checks that the run has work to do.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrConfig, c.Workers)
	}
	if c.Repetitions <= 0 {
		return fmt.Errorf("%w: repetitions must be positive, got %d", ErrConfig, c.Repetitions)
	}
	if c.Delay < 0 {
		return fmt.Errorf("%w: negative delay %v", ErrConfig, c.Delay)
	}
	return nil
}

// Sequence is a fixed-capacity shared sequence. Each Append claims its own index, so single
// appends never race with each other; only the grouping of appends depends on the lock.
type Sequence struct {
	values []float64
	n      atomic.Int64
}

// NewSequence returns an empty Sequence with room for capacity values.
func NewSequence(capacity int) *Sequence {
	return &Sequence{values: make([]float64, capacity)}
}

// Append adds v at the next free index. It panics when the sequence is full.
func (s *Sequence) Append(v float64) {
	i := s.n.Add(1) - 1
	if i >= int64(len(s.values)) {
		panic(fmt.Sprintf("workload: sequence overflow at index %d (capacity %d)", i, len(s.values)))
	}
	s.values[i] = v
}

// Len returns the number of appended values.
func (s *Sequence) Len() int { return int(s.n.Load()) }

// Values returns the appended values. It must only be called once all appenders are done.
func (s *Sequence) Values() []float64 { return s.values[:s.Len()] }

// Run executes the workload with locker guarding every critical section. All workers are
// released at once so that they contend from the first repetition.
func Run(ctx context.Context, locker sync.Locker, cfg Config) (*Sequence, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "workload.Run", trace.WithAttributes(
		attribute.Int("workload.workers", cfg.Workers),
		attribute.Int("workload.repetitions", cfg.Repetitions),
		attribute.Int("workload.items", cfg.items()),
	))
	defer span.End()

	seq := NewSequence(cfg.Total())
	start := make(chan struct{})
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		w := w
		g.Go(func() error {
			_, wspan := tracer.Start(ctx, "workload.worker", trace.WithAttributes(attribute.Int("workload.worker", w)))
			defer wspan.End()

			values := newValueSource(cfg, w)
			<-start
			for rep := 0; rep < cfg.Repetitions; rep++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				v := values.next(rep)
				locker.Lock()
				criticalSection(seq, v, cfg)
				locker.Unlock()
			}
			return nil
		})
	}
	close(start)

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return seq, err
	}
	return seq, nil
}

// criticalSection appends v Items times, pausing between appends when a delay is set.
func criticalSection(seq *Sequence, v float64, cfg Config) {
	items := cfg.items()
	for i := 0; i < items; i++ {
		seq.Append(v)
		if cfg.Delay > 0 && i < items-1 {
			time.Sleep(cfg.Delay)
		}
	}
}

// Verify checks that seq is the result of a complete run in which no two critical sections
// overlapped.
func Verify(seq *Sequence, cfg Config) error {
	values := seq.Values()
	if want := cfg.Total(); len(values) != want {
		return fmt.Errorf("%w: got %d entries, want %d", ErrLength, len(values), want)
	}
	items := cfg.items()
	for start := 0; start < len(values); start += items {
		for i := start + 1; i < start+items; i++ {
			if values[i] != values[start] {
				return fmt.Errorf("%w: entry %d is %v but entry %d is %v",
					ErrNotAtomic, start, values[start], i, values[i])
			}
		}
	}
	return nil
}

type valueSource struct {
	worker, repetitions int
	rng                 *fastrand.RNG
}

func newValueSource(cfg Config, worker int) valueSource {
	vs := valueSource{worker: worker, repetitions: cfg.Repetitions}
	if cfg.Seed != 0 {
		vs.rng = new(fastrand.RNG)
		vs.rng.Seed(cfg.Seed + uint32(worker))
	}
	return vs
}

func (vs valueSource) next(rep int) float64 {
	if vs.rng == nil {
		return float64(vs.worker*vs.repetitions + rep)
	}
	n := float64(vs.rng.Uint32n(1001))
	return n + n
}
