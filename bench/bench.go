// Package bench measures how long a group of goroutines takes to push a fixed number of
// critical sections through a lock, and exports the measurements as CSV for offline
// comparison of lock implementations.
package bench

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/ahrav/mcslock/bench")

// ErrConfig reports an unusable Config.
var ErrConfig = errors.New("invalid bench config")

// csvHeader names the two CSV columns.
var csvHeader = []string{"Critical Section Count per Thread", "Time (ms)"}

// Record is one measurement: how long Workers goroutines took to each run Count critical
// sections.
type Record struct {
	Count     int
	ElapsedMS float64
}

// Recorder times consecutive measurements and collects them as Records.
type Recorder struct {
	start   time.Time
	elapsed time.Duration
	records []Record
}

// Start resets the timer.
func (r *Recorder) Start() { r.start = time.Now() }

// Stop stores and returns the time since Start.
func (r *Recorder) Stop() time.Duration {
	r.elapsed = time.Since(r.start)
	return r.elapsed
}

// Log appends a Record for count using the last stopped duration.
func (r *Recorder) Log(count int) {
	r.records = append(r.records, Record{
		Count:     count,
		ElapsedMS: float64(r.elapsed) / float64(time.Millisecond),
	})
}

// Records returns the logged records.
func (r *Recorder) Records() []Record { return r.records }

// Config describes a benchmark run.
type Config struct {
	Name    string // lock name, used for tracing
	Workers int    // concurrent goroutines
	Counts  []int  // critical sections per worker, one Record each
	Work    int    // increments of shared state inside each critical section
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrConfig, c.Workers)
	}
	if len(c.Counts) == 0 {
		return fmt.Errorf("%w: no counts", ErrConfig)
	}
	for _, n := range c.Counts {
		if n <= 0 {
			return fmt.Errorf("%w: count must be positive, got %d", ErrConfig, n)
		}
	}
	if c.Work < 0 {
		return fmt.Errorf("%w: negative work %d", ErrConfig, c.Work)
	}
	return nil
}

// Run measures locker once per entry in cfg.Counts. The timer covers the span from the
// moment all workers are released to the moment the last one finishes.
func Run(ctx context.Context, locker sync.Locker, cfg Config) ([]Record, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "bench.Run", trace.WithAttributes(
		attribute.String("bench.lock", cfg.Name),
		attribute.Int("bench.workers", cfg.Workers),
	))
	defer span.End()

	var rec Recorder
	for _, count := range cfg.Counts {
		if err := measure(ctx, locker, cfg, count, &rec); err != nil {
			span.RecordError(err)
			return rec.Records(), err
		}
		rec.Log(count)
		span.AddEvent("measured", trace.WithAttributes(
			attribute.Int("bench.count", count),
			attribute.Float64("bench.elapsed_ms", rec.records[len(rec.records)-1].ElapsedMS),
		))
	}
	return rec.Records(), nil
}

func measure(ctx context.Context, locker sync.Locker, cfg Config, count int, rec *Recorder) error {
	shared := 0
	start := make(chan struct{})
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			<-start
			for j := 0; j < count; j++ {
				locker.Lock()
				for k := 0; k < cfg.Work; k++ {
					shared++
				}
				locker.Unlock()
			}
			return ctx.Err()
		})
	}

	rec.Start()
	close(start)
	err := g.Wait()
	rec.Stop()
	if err != nil {
		return err
	}
	if want := cfg.Workers * count * cfg.Work; shared != want {
		return fmt.Errorf("lost updates under %q: shared counter is %d, want %d", cfg.Name, shared, want)
	}
	return nil
}

// WriteCSV writes records with a header row.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{strconv.Itoa(r.Count), strconv.FormatFloat(r.ElapsedMS, 'f', 3, 64)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes records to a new file named <name>-<uuid>.csv in dir, creating dir if
// needed, and returns the file's path.
func SaveCSV(dir, name string, records []Record) (path string, err error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path = filepath.Join(dir, fmt.Sprintf("%s-%s.csv", name, uuid.NewString()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close csv: %w", cerr)
		}
	}()
	if err := WriteCSV(f, records); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}
	return path, nil
}
