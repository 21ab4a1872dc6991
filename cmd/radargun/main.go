// Command radargun drives a fleet of stressor workers against a configured
// cache.Backend, following a TOML configuration file.
package main

import (
	"context"
	"flag"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sharedcode/radargun"
	"github.com/sharedcode/radargun/cache"
	"github.com/sharedcode/radargun/config"
	"github.com/sharedcode/radargun/stressor"
)

func main() {
	radargun.ConfigureLogging()

	configPath := flag.String("config", "radargun.toml", "path to a radargun TOML configuration file")
	statusAddr := flag.String("status-addr", "localhost:8089", "address the status HTTP server listens on")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.RegisterBackends(); err != nil {
		log.Error("failed to register backends", "error", err)
		os.Exit(1)
	}

	opts, err := cfg.StressorOptions()
	if err != nil {
		log.Error("failed to build stressor options", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, *statusAddr); err != nil {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.File, opts stressor.Options, statusAddr string) error {
	runID := radargun.NewUUID()
	log.Info("starting run", "runId", runID, "version", radargun.Version, "logic", cfg.Logic, "backend", cfg.Backend, "threads", opts.NumThreads)

	backend := cache.NewBackend()
	if backend == nil {
		log.Error("no cache backend registered for selection", "backend", cfg.Backend)
		os.Exit(1)
	}

	keygen := stressor.DecimalKeyGenerator{}
	liveness := stressor.AlwaysAlive{}
	stats := stressor.NewStatistics(time.Now().UnixNano())

	workers := make([]*stressor.StressorWorker, 0, opts.NumThreads)
	for t := 0; t < opts.NumThreads; t++ {
		span := int64(opts.NumEntries) / int64(max(opts.NumThreads, 1))
		start := int64(t) * span
		end := start + span
		if t == opts.NumThreads-1 {
			end = int64(opts.NumEntries)
		}
		primary := stressor.KeyRange{Start: start, End: end}

		threadID := opts.ThreadID(t)
		logic, err := newLogic(ctx, cfg.Logic, threadID, opts, backend, keygen, liveness, stats, start, end)
		if err != nil {
			return err
		}
		workers = append(workers, stressor.NewStressorWorker(threadID, opts, backend, keygen, stats, logic, primary, nil))
	}

	runner := radargun.NewTaskRunner(ctx, len(workers))
	for _, w := range workers {
		w := w
		runner.Go(func() error {
			return w.Run(runner.GetContext())
		})
	}

	go reportPeriodically(ctx, stats)
	go serveStatus(ctx, statusAddr, runID.String(), stats)

	return runner.Wait()
}

func newLogic(ctx context.Context, kind config.LogicKind, threadID int, opts stressor.Options, backend cache.Backend,
	keygen stressor.KeyGenerator, liveness stressor.LivenessOracle, stats *stressor.Statistics, start, end int64) (interface {
	Invoke(context.Context) error
}, error) {

	switch kind {
	case config.LogicPrivate:
		return stressor.NewPrivateLogLogic(ctx, threadID, start, end, opts, backend, keygen, liveness, stats)
	case config.LogicShared:
		return stressor.NewSharedLogLogic(ctx, threadID, opts, backend, keygen, liveness, stats)
	default:
		return stressor.NewLegacyLogic(start, end, opts, backend, keygen, stats), nil
	}
}

func reportPeriodically(ctx context.Context, stats *stressor.Statistics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, snap := range stats.SnapshotStats(true, now.UnixNano()) {
				log.Info("op stats", "operation", snap.Operation, "count", snap.Count, "errors", snap.Errors, "totalTime", snap.TotalTime)
			}
		}
	}
}
