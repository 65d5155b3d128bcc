package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"daemonkit/daemon"
	"daemonkit/internal/fileutil"
	"daemonkit/logging"
	"daemonkit/markerfile"
	"daemonkit/quit"
)

// Controller supervises a fixed, ordered set of workers.
type Controller struct {
	opts    Options
	logger  *slog.Logger
	workers []*managed

	mu sync.Mutex // guards record reads from outside the poll loop
}

// managed is the controller's private per-worker state.
type managed struct {
	spec   Spec
	rec    Record
	cmd    *exec.Cmd
	done   chan error
	marker *markerfile.Marker
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	startAfter time.Time
	started    bool // has this worker ever been spawned
}

// NewController validates the specs (unique names, resolvable entries) and
// returns a controller handle. Resolution failures surface here, before any
// worker process exists.
func NewController(specs []Spec, opts Options) (*Controller, error) {
	if len(specs) == 0 {
		return nil, errors.New("worker pool requires at least one spec")
	}
	seen := make(map[string]struct{}, len(specs))
	markers := make(map[string]struct{}, len(specs))
	workers := make([]*managed, 0, len(specs))
	for _, spec := range specs {
		if err := spec.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate worker name %q", spec.Name)
		}
		seen[spec.Name] = struct{}{}
		if _, dup := markers[spec.MarkerPath]; dup {
			return nil, fmt.Errorf("worker %q reuses marker path %s", spec.Name, spec.MarkerPath)
		}
		markers[spec.MarkerPath] = struct{}{}

		workers = append(workers, &managed{
			spec: spec,
			rec: Record{
				Name:       spec.Name,
				Entry:      spec.Entry,
				MarkerPath: spec.MarkerPath,
				State:      StateStarting,
			},
		})
	}
	return &Controller{
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "controller"),
		workers: workers,
	}, nil
}

// Run executes the poll loop in the calling goroutine until q trips, then
// shuts the pool down: termination is forwarded to every running worker and
// Run blocks until all have exited and released their marker files. Workers
// never restart once shutdown has begun.
func (c *Controller) Run(q *quit.Token) error {
	if q == nil {
		q = quit.NewToken()
	}
	c.logger.Info("worker pool starting",
		logging.Int("workers", len(c.workers)),
		logging.Duration("check_interval", c.opts.checkInterval()))

	for !q.Requested() {
		c.mu.Lock()
		for _, w := range c.workers {
			c.reap(w)
		}
		for _, w := range c.workers {
			if c.canStart(w) && !q.Requested() {
				c.start(w)
			}
		}
		c.mu.Unlock()

		c.writeSnapshot()
		q.Sleep(c.opts.checkInterval(), c.opts.sleepStep())
	}

	c.shutdown()
	c.writeSnapshot()
	c.logger.Info("worker pool stopped")
	return nil
}

// reap records the exit of a worker whose process has terminated, releases
// its marker file, and schedules a restart when policy allows.
func (c *Controller) reap(w *managed) {
	if w.cmd == nil {
		return
	}
	var waitErr error
	select {
	case waitErr = <-w.done:
	default:
		return
	}
	c.finishRun(w, waitErr)

	if interval := c.restartInterval(w); interval > 0 {
		next := time.Now().Add(interval)
		w.startAfter = next
		w.rec.NextStart = &next
	}
}

// finishRun folds a completed process into the worker's record.
func (c *Controller) finishRun(w *managed, waitErr error) {
	exitCode := daemon.WaitExitCode(waitErr)
	now := time.Now().UTC()

	run := RunHistory{
		SpawnID:  w.rec.SpawnID,
		PID:      w.rec.PID,
		ExitCode: exitCode,
		EndedAt:  now,
	}
	if w.rec.LastStart != nil {
		run.StartedAt = *w.rec.LastStart
	}
	w.rec.appendHistory(run)
	w.rec.LastExitCode = &exitCode
	w.rec.PID = 0
	w.rec.SpawnID = ""
	if exitCode == 0 {
		w.rec.State = StateStopped
	} else {
		w.rec.State = StateCrashed
	}

	if w.marker != nil {
		if err := w.marker.Release(); err != nil {
			c.logger.Error("release worker marker",
				logging.String(logging.FieldWorker, w.spec.Name),
				logging.Error(err))
		}
		w.marker = nil
	}
	c.closeOutputs(w)
	w.cmd = nil
	w.done = nil

	c.logger.Info("worker exited",
		logging.String(logging.FieldWorker, w.spec.Name),
		logging.Int(logging.FieldExitCode, exitCode),
		logging.Int(logging.FieldRestartCount, w.rec.RestartCount))
}

// canStart mirrors the restart policy: a worker may start when it is not
// running and either has never started or its restart time has come.
func (c *Controller) canStart(w *managed) bool {
	if w.cmd != nil {
		return false
	}
	if !w.started {
		return true
	}
	if c.restartInterval(w) <= 0 {
		return false
	}
	return !w.startAfter.IsZero() && !time.Now().Before(w.startAfter)
}

func (c *Controller) restartInterval(w *managed) time.Duration {
	if w.spec.RestartInterval > 0 {
		return w.spec.RestartInterval
	}
	return c.opts.RestartInterval
}

// start spawns the worker process and creates its marker file. A marker
// already present on disk means a previous owner died uncleanly; that is
// surfaced and left for the operator, and the worker is not spawned.
func (c *Controller) start(w *managed) {
	if markerfile.Exists(w.spec.MarkerPath) {
		c.logger.Error("worker marker file already exists, not spawning",
			logging.String(logging.FieldWorker, w.spec.Name),
			logging.String(logging.FieldMarkerPath, w.spec.MarkerPath))
		return
	}

	isRestart := w.started
	w.rec.State = StateStarting

	childSpec := &daemon.LaunchSpec{
		Name:    w.spec.Name,
		Entry:   w.spec.Entry,
		Args:    w.spec.Args,
		Logging: w.spec.Logging,
		// The controller owns the marker; the child never touches it.
		MarkerPath: w.spec.MarkerPath,
	}
	cmd, err := daemon.NewWorkerCommand(childSpec)
	if err != nil {
		c.logger.Error("build worker command",
			logging.String(logging.FieldWorker, w.spec.Name),
			logging.Error(err))
		w.rec.State = StateCrashed
		return
	}

	if err := c.openOutputs(w, cmd); err != nil {
		c.logger.Error("open worker output",
			logging.String(logging.FieldWorker, w.spec.Name),
			logging.Error(err))
		w.rec.State = StateCrashed
		return
	}

	if err := cmd.Start(); err != nil {
		c.closeOutputs(w)
		c.logger.Error("spawn worker",
			logging.String(logging.FieldWorker, w.spec.Name),
			logging.Error(err))
		w.rec.State = StateCrashed
		return
	}

	marker, err := markerfile.AcquireOwned(w.spec.MarkerPath, cmd.Process.Pid)
	if err != nil {
		c.logger.Error("acquire worker marker, terminating fresh worker",
			logging.String(logging.FieldWorker, w.spec.Name),
			logging.Error(err))
		_ = daemon.Terminate(cmd.Process.Pid)
		_ = cmd.Wait()
		c.closeOutputs(w)
		w.rec.State = StateCrashed
		return
	}

	now := time.Now().UTC()
	w.cmd = cmd
	w.marker = marker
	w.done = make(chan error, 1)
	go func(cmd *exec.Cmd, done chan<- error) { done <- cmd.Wait() }(cmd, w.done)

	w.started = true
	w.startAfter = time.Time{}
	w.rec.State = StateRunning
	w.rec.PID = cmd.Process.Pid
	w.rec.SpawnID = uuid.NewString()
	w.rec.LastStart = &now
	w.rec.NextStart = nil
	if isRestart {
		w.rec.RestartCount++
	}

	c.logger.Info("worker spawned",
		logging.String(logging.FieldWorker, w.spec.Name),
		logging.Int(logging.FieldPID, w.rec.PID),
		logging.Int(logging.FieldRestartCount, w.rec.RestartCount))
}

// shutdown forwards SIGTERM to every running worker and blocks until all
// have exited, escalating to SIGKILL after the grace period.
func (c *Controller) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, w := range c.workers {
		c.reap(w)
		if w.cmd == nil {
			continue
		}
		w.rec.State = StateStopping
		if err := daemon.Terminate(w.rec.PID); err != nil {
			if errors.Is(err, daemon.ErrProcessGone) {
				continue
			}
			c.logger.Warn("forward termination signal",
				logging.String(logging.FieldWorker, w.spec.Name),
				logging.Error(err))
		}
	}

	grace := time.After(c.opts.stopGracePeriod())
	for _, w := range c.workers {
		if w.cmd == nil {
			continue
		}
		select {
		case waitErr := <-w.done:
			c.finishRun(w, waitErr)
		case <-grace:
			c.logger.Warn("worker ignored termination signal, force killing",
				logging.String(logging.FieldWorker, w.spec.Name),
				logging.Int(logging.FieldPID, w.rec.PID))
			if err := daemon.ForceKill(w.rec.PID); err != nil && !errors.Is(err, daemon.ErrProcessGone) {
				c.logger.Error("force kill worker", logging.Error(err))
			}
			c.finishRun(w, <-w.done)
			grace = closedTimer()
		}
	}
}

// closedTimer returns an always-ready channel so remaining workers skip
// straight to force kill once the shared grace period has elapsed.
func closedTimer() <-chan time.Time {
	ch := make(chan time.Time)
	close(ch)
	return ch
}

func (c *Controller) openOutputs(w *managed, cmd *exec.Cmd) error {
	stdin, err := os.Open(os.DevNull)
	if err != nil {
		return fmt.Errorf("open null device: %w", err)
	}
	stdout, err := daemon.OpenOutput(w.spec.StdoutPath)
	if err != nil {
		_ = stdin.Close()
		return err
	}
	stderr := stdout
	if w.spec.StderrPath != w.spec.StdoutPath {
		stderr, err = daemon.OpenOutput(w.spec.StderrPath)
		if err != nil {
			_ = stdin.Close()
			_ = stdout.Close()
			return err
		}
	}
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	w.stdin = stdin
	w.stdout = stdout
	w.stderr = stderr
	return nil
}

// closeOutputs drops the controller's copies of the worker's stdio; the
// spawned child holds its own descriptors.
func (c *Controller) closeOutputs(w *managed) {
	if w.stdin != nil {
		_ = w.stdin.Close()
	}
	if w.stdout != nil {
		_ = w.stdout.Close()
	}
	if w.stderr != nil && w.stderr != w.stdout {
		_ = w.stderr.Close()
	}
	w.stdin = nil
	w.stdout = nil
	w.stderr = nil
}

// Snapshot returns a copy of all process records.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{UpdatedAt: time.Now().UTC(), Workers: make([]Record, 0, len(c.workers))}
	for _, w := range c.workers {
		rec := w.rec
		rec.History = append([]RunHistory(nil), w.rec.History...)
		snap.Workers = append(snap.Workers, rec)
	}
	return snap
}

// writeSnapshot overwrites the debug snapshot file, when configured.
func (c *Controller) writeSnapshot() {
	if c.opts.SnapshotPath == "" {
		return
	}
	data, err := json.MarshalIndent(c.Snapshot(), "", "  ")
	if err != nil {
		c.logger.Error("encode debug snapshot", logging.Error(err))
		return
	}
	if err := fileutil.WriteFileAtomic(c.opts.SnapshotPath, data, 0o644); err != nil {
		c.logger.Error("write debug snapshot", logging.Error(err))
	}
}

// StartWorkers runs a pool in the calling process: it builds a controller,
// installs the termination-signal handler, and blocks in the poll loop
// until shutdown completes.
func StartWorkers(specs []Spec, opts Options) error {
	c, err := NewController(specs, opts)
	if err != nil {
		return err
	}
	q := quit.NewToken()
	q.Install(os.Interrupt, unix.SIGTERM)
	return c.Run(q)
}
