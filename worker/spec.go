// Package worker supervises a named pool of independent worker processes.
//
// Each worker is an executor-equivalent: one process, one marker file, one
// entry invocation, cooperative cancellation via its own signal-tripped
// token. The Controller runs a single-threaded poll loop that spawns
// workers, reaps exits, applies per-worker restart policy, and overwrites a
// debug snapshot every cycle. Concurrency comes from the workers being
// separate OS processes, not from parallelism inside the controller.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"daemonkit/entry"
	"daemonkit/logging"
)

// Spec describes one worker in a pool.
type Spec struct {
	// Name uniquely identifies the worker within its pool.
	Name string `json:"name"`

	// MarkerPath is the worker's exclusive marker file, created by the
	// controller with the worker's pid and released after the worker exits.
	MarkerPath string `json:"marker_path"`

	// Entry references a registered entry function as "container:name".
	Entry string `json:"entry"`

	// Args is the keyword-argument mapping handed to the entry.
	Args map[string]any `json:"args,omitempty"`

	StdoutPath string `json:"stdout_path,omitempty"`
	StderrPath string `json:"stderr_path,omitempty"`

	// Logging is applied opaquely inside the worker process.
	Logging *logging.Options `json:"logging,omitempty"`

	// RestartInterval overrides the pool-wide restart interval for this
	// worker. Zero inherits the pool setting.
	RestartInterval time.Duration `json:"restart_interval,omitempty"`
}

func (s *Spec) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("worker spec: name is required")
	}
	if strings.TrimSpace(s.MarkerPath) == "" {
		return fmt.Errorf("worker spec %q: marker path is required", s.Name)
	}
	if _, err := entry.Resolve(s.Entry); err != nil {
		return fmt.Errorf("worker spec %q: %w", s.Name, err)
	}
	return nil
}

// Options configures a Controller.
type Options struct {
	// CheckInterval is the fixed poll period; defaults to one minute.
	CheckInterval time.Duration

	// RestartInterval is the pool-wide wait before respawning a dead
	// worker. Zero disables restarts.
	RestartInterval time.Duration

	// SnapshotPath, when set, receives the JSON debug snapshot of all
	// process records, overwritten every poll cycle.
	SnapshotPath string

	// StopGracePeriod bounds the wait for a signalled worker before it is
	// force-killed; defaults to 30 seconds.
	StopGracePeriod time.Duration

	// SleepStep bounds the latency of the controller's interruptible
	// waits; defaults to one second.
	SleepStep time.Duration

	// Logger receives controller and lifecycle events; nil discards them.
	Logger *slog.Logger
}

func (o Options) checkInterval() time.Duration {
	if o.CheckInterval > 0 {
		return o.CheckInterval
	}
	return time.Minute
}

func (o Options) stopGracePeriod() time.Duration {
	if o.StopGracePeriod > 0 {
		return o.StopGracePeriod
	}
	return 30 * time.Second
}

func (o Options) sleepStep() time.Duration {
	if o.SleepStep > 0 {
		return o.SleepStep
	}
	return time.Second
}
