// Command mcsdemo runs worker goroutines that append to a shared sequence inside a
// critical section and checks that the critical sections never interleaved.
//
//	mcsdemo -workers 5 -reps 10            # MCS lock, check passes
//	mcsdemo -lock none -delay 1ms          # no lock, check fails
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/ahrav/mcslock/internal/lockkind"
	"github.com/ahrav/mcslock/internal/logging"
	"github.com/ahrav/mcslock/internal/telemetry"
	"github.com/ahrav/mcslock/internal/workload"
	"github.com/ahrav/mcslock/metrics"
	"github.com/ahrav/mcslock/spin"
)

var (
	workers     = flag.Int("workers", 5, "Number of worker goroutines")
	reps        = flag.Int("reps", 10, "Critical sections per worker")
	items       = flag.Int("items", workload.DefaultItems, "Appends per critical section")
	lockName    = flag.String("lock", string(lockkind.MCS), "Lock: mcs, mutex, ticket, array, none")
	spinName    = flag.String("spin", spin.Busy.String(), "Spin strategy: busy, yield, backoff")
	delay       = flag.Duration("delay", 0, "Pause between appends inside the critical section")
	seed        = flag.Uint("seed", 0, "Append random values drawn from this seed (0 appends unique values)")
	traceSpans  = flag.Bool("trace", false, "Print OpenTelemetry spans to stderr")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address after the run until interrupted")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat   = flag.String("log-format", "text", "Log format: text, json")
)

func main() {
	flag.Parse()

	log, err := logging.New(os.Stderr, logging.Config{Level: *logLevel, Format: *logFormat})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Error("demo failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	kind, err := lockkind.Parse(*lockName)
	if err != nil {
		return err
	}
	strategy, err := spin.ParseStrategy(*spinName)
	if err != nil {
		return err
	}

	if *traceSpans {
		shutdown, err := telemetry.SetupTracing(os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("flush spans", "error", err)
			}
		}()
	}

	locker, err := lockkind.New(kind, lockkind.Config{Spin: strategy, Contenders: *workers})
	if err != nil {
		return err
	}
	reg := metrics.NewRegistry()
	if *metricsAddr != "" && kind != lockkind.None {
		locker = metrics.Instrument(string(kind), locker, metrics.Register(reg))
	}

	cfg := workload.Config{
		Workers:     *workers,
		Repetitions: *reps,
		Items:       *items,
		Delay:       *delay,
		Seed:        uint32(*seed),
	}
	log.Info("starting workers", "lock", kind, "spin", strategy, "workers", cfg.Workers,
		"reps", cfg.Repetitions, "items", *items, "delay", cfg.Delay)

	seq, err := workload.Run(ctx, locker, cfg)
	if err != nil {
		return err
	}

	verr := workload.Verify(seq, cfg)
	switch {
	case verr == nil:
		log.Info("critical section was atomic", "lock", kind, "entries", seq.Len())
	case errors.Is(verr, workload.ErrNotAtomic):
		log.Warn("critical section was not atomic", "lock", kind, "entries", seq.Len(), "detail", verr)
	}

	if *metricsAddr != "" {
		log.Info("serving metrics, interrupt to exit", "addr", *metricsAddr)
		if err := metrics.Serve(ctx, *metricsAddr, reg); err != nil {
			return err
		}
	}
	return verr
}
