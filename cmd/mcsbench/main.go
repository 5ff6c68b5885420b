// Command mcsbench times the queue lock against the baseline locks and writes one CSV file
// per lock with the elapsed time for each critical-section count.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/ahrav/mcslock/bench"
	"github.com/ahrav/mcslock/internal/lockkind"
	"github.com/ahrav/mcslock/internal/logging"
	"github.com/ahrav/mcslock/internal/telemetry"
	"github.com/ahrav/mcslock/metrics"
	"github.com/ahrav/mcslock/spin"
)

var (
	workers     = flag.Int("workers", 5, "Number of worker goroutines")
	countsList  = flag.String("counts", "10,100,1000,10000", "Comma separated critical sections per worker")
	locksList   = flag.String("locks", "mcs,mutex,ticket,array", "Comma separated locks to measure")
	spinName    = flag.String("spin", spin.Busy.String(), "Spin strategy: busy, yield, backoff")
	work        = flag.Int("work", 100, "Increments of shared state inside each critical section")
	outDir      = flag.String("out", ".", "Directory for CSV output")
	traceSpans  = flag.Bool("trace", false, "Print OpenTelemetry spans to stderr")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address after the run until interrupted")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	log, err := logging.New(os.Stderr, logging.Config{Level: *logLevel})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Error("benchmark failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	kinds, err := lockkind.ParseList(*locksList)
	if err != nil {
		return err
	}
	counts, err := parseCounts(*countsList)
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

	reg := metrics.NewRegistry()
	collectors := metrics.Register(reg)

	fmt.Printf("| %-8s | %-10s | %-12s |\n", "Lock", "Count", "Time (ms)")
	fmt.Println("|:---|:---|:---|")
	for _, kind := range kinds {
		if kind == lockkind.None {
			log.Warn("skipping lock without mutual exclusion", "lock", kind)
			continue
		}
		locker, err := lockkind.New(kind, lockkind.Config{Spin: strategy, Contenders: *workers})
		if err != nil {
			return err
		}
		if *metricsAddr != "" {
			locker = metrics.Instrument(string(kind), locker, collectors)
		}

		recs, err := bench.Run(ctx, locker, bench.Config{
			Name:    string(kind),
			Workers: *workers,
			Counts:  counts,
			Work:    *work,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		for _, r := range recs {
			fmt.Printf("| %-8s | %-10d | %-12.3f |\n", kind, r.Count, r.ElapsedMS)
		}

		path, err := bench.SaveCSV(*outDir, string(kind), recs)
		if err != nil {
			return err
		}
		log.Info("wrote results", "lock", kind, "path", path)
	}

	if *metricsAddr != "" {
		log.Info("serving metrics, interrupt to exit", "addr", *metricsAddr)
		return metrics.Serve(ctx, *metricsAddr, reg)
	}
	return nil
}

func parseCounts(list string) ([]int, error) {
	var counts []int
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("parse count %q: %w", field, err)
		}
		counts = append(counts, n)
	}
	return counts, nil
}
