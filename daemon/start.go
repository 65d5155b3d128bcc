package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"daemonkit/entry"
	"daemonkit/markerfile"
	"daemonkit/quit"
)

// ErrNotRunning indicates no live daemon owns the marker path.
var ErrNotRunning = errors.New("daemon not running")

// ErrStaleMarker indicates a marker file whose recorded owner is dead.
// Removing it is an operator action, never automatic.
var ErrStaleMarker = errors.New("marker file is stale")

// StartDaemon launches a detached guardian for the spec and reports the
// outcome synchronously. Configuration problems (unresolvable entry,
// invalid spec) fail here, before anything detaches. Concurrent calls for
// the same marker path are serialized with a sibling flock file so exactly
// one caller observes StatusStarted.
func StartDaemon(spec *LaunchSpec) (RunResult, error) {
	if err := spec.Validate(); err != nil {
		return RunResult{}, err
	}
	if _, err := entry.Resolve(spec.Entry); err != nil {
		return RunResult{}, err
	}

	launchLock := flock.New(spec.MarkerPath + ".launch")
	ctx, cancel := context.WithTimeout(context.Background(), DefaultLaunchTimeout)
	defer cancel()
	locked, err := launchLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return RunResult{}, fmt.Errorf("acquire launch lock: %w", err)
	}
	if !locked {
		return RunResult{}, errors.New("acquire launch lock: timed out")
	}
	defer func() { _ = launchLock.Unlock() }()

	if pid, ok, err := markerfile.ReadPID(spec.MarkerPath); err != nil {
		return RunResult{}, err
	} else if ok {
		return RunResult{Status: StatusAlreadyRunning, PID: pid, MarkerPath: spec.MarkerPath}, nil
	}

	if _, err := spawnDetached(spec); err != nil {
		return RunResult{}, err
	}

	// The guardian acquires the marker as its first act; its appearance is
	// the startup handshake.
	deadline := time.Now().Add(DefaultLaunchTimeout)
	for time.Now().Before(deadline) {
		pid, ok, err := markerfile.ReadPID(spec.MarkerPath)
		if err != nil {
			return RunResult{}, err
		}
		if ok {
			return RunResult{Status: StatusStarted, PID: pid, MarkerPath: spec.MarkerPath}, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return RunResult{}, fmt.Errorf("guardian for %s did not signal startup within %s",
		spec.displayName(), DefaultLaunchTimeout)
}

// Stop requests termination of the daemon owning markerPath by sending its
// guardian SIGTERM. Returns ErrNotRunning when no marker exists and
// ErrStaleMarker when the recorded owner is dead.
func Stop(markerPath string) (int, error) {
	pid, ok, err := markerfile.ReadPID(markerPath)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotRunning
	}
	if err := signalProcess(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, ErrProcessGone) {
			return pid, fmt.Errorf("%w: %s (owner pid %d is dead)", ErrStaleMarker, markerPath, pid)
		}
		return pid, err
	}
	return pid, nil
}

// WaitForExit blocks until the marker at markerPath disappears or the
// timeout elapses. The wait is interruptible through q; a nil token waits
// uninterruptibly.
func WaitForExit(markerPath string, timeout time.Duration, q *quit.Token) error {
	if q == nil {
		q = quit.NewToken()
	}
	deadline := time.Now().Add(timeout)
	for {
		if !markerfile.Exists(markerPath) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon owning %s still running after %s", markerPath, timeout)
		}
		if !q.Sleep(100*time.Millisecond, 100*time.Millisecond) {
			return context.Canceled
		}
	}
}

// Probe reports the pid recorded at markerPath and whether that process is
// alive. A present marker with a dead owner reports running=false, letting
// callers surface the stale state.
func Probe(markerPath string) (pid int, running bool, err error) {
	pid, ok, err := markerfile.ReadPID(markerPath)
	if err != nil || !ok {
		return 0, false, err
	}
	return pid, processAlive(pid), nil
}
