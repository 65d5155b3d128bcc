package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"daemonkit/appconfig"
	"daemonkit/entry"
	"daemonkit/quit"
	"daemonkit/worker"
)

// registerEntries declares the entry functions this binary can run. Spawned
// guardian, executor, and worker processes resolve these by reference, so
// registration must happen before daemon.Main.
func registerEntries() {
	entry.Register("demo", "heartbeat", heartbeatEntry)
	entry.Register("demo", "flaky", flakyEntry)
	entry.Register("demo", "pool", poolEntry)
}

// heartbeatEntry logs a line every interval until shutdown is requested.
func heartbeatEntry(args map[string]any, q *quit.Token) error {
	interval := durationArg(args, "interval_seconds", 5*time.Second)
	logger := slog.Default()

	beats := 0
	for !q.Requested() {
		beats++
		logger.Info("heartbeat", "beat", beats)
		q.Sleep(interval, time.Second)
	}
	logger.Info("heartbeat stopping", "beats", beats)
	return nil
}

// flakyEntry runs for a while and then fails, exercising restart policies.
func flakyEntry(args map[string]any, q *quit.Token) error {
	lifetime := durationArg(args, "lifetime_seconds", 10*time.Second)
	if q.Sleep(lifetime, time.Second) {
		return errors.New("flaky entry gave up")
	}
	return nil
}

// poolEntry runs a worker pool of heartbeat workers sized by args. It is
// meant to run under a guardian, with workers spawned as children of the
// executor process.
func poolEntry(args map[string]any, q *quit.Token) error {
	cfg, err := appconfig.Load("")
	if err != nil {
		return err
	}

	poolName := stringArg(args, "pool", "pool")
	count := intArg(args, "count", 2)
	if count < 1 {
		return fmt.Errorf("pool size %d is not positive", count)
	}

	specs := make([]worker.Spec, 0, count)
	for i := 1; i <= count; i++ {
		name := fmt.Sprintf("worker-%d", i)
		paths := cfg.WorkerPaths(poolName, name)
		specs = append(specs, worker.Spec{
			Name:       name,
			MarkerPath: paths.MarkerPath,
			Entry:      "demo:heartbeat",
			Args:       map[string]any{"interval_seconds": floatArg(args, "interval_seconds", 5)},
			StdoutPath: paths.StdoutPath,
			StderrPath: paths.StderrPath,
			Logging:    cfg.LoggerOptions(paths.LogPath, ""),
		})
	}

	ctl, err := worker.NewController(specs, worker.Options{
		CheckInterval:   durationArg(args, "check_interval_seconds", 10*time.Second),
		RestartInterval: durationArg(args, "restart_interval_seconds", 0),
		SnapshotPath:    cfg.DaemonPaths(poolName).SnapshotPath,
		Logger:          slog.Default(),
	})
	if err != nil {
		return err
	}
	return ctl.Run(q)
}

// Args cross a process boundary as JSON, so numbers arrive as float64.

func floatArg(args map[string]any, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func intArg(args map[string]any, key string, fallback int) int {
	return int(floatArg(args, key, float64(fallback)))
}

func durationArg(args map[string]any, key string, fallback time.Duration) time.Duration {
	seconds := floatArg(args, key, fallback.Seconds())
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
