package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"daemonkit/internal/fileutil"
)

// ErrProcessGone indicates a signal target no longer exists. Supervisors
// treat it as "child already exited" and proceed to cleanup.
var ErrProcessGone = errors.New("process gone")

// signalProcess delivers sig to pid. A vanished target is reported as
// ErrProcessGone rather than a hard failure.
func signalProcess(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return ErrProcessGone
	}
	if err := unix.Kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return ErrProcessGone
		}
		return fmt.Errorf("signal process %d: %w", pid, err)
	}
	return nil
}

// Terminate forwards SIGTERM to pid.
func Terminate(pid int) error { return signalProcess(pid, unix.SIGTERM) }

// ForceKill sends SIGKILL to pid.
func ForceKill(pid int) error { return signalProcess(pid, unix.SIGKILL) }

// WaitExitCode translates a Cmd.Wait error into an exit status.
func WaitExitCode(err error) int { return exitCodeOf(err) }

// OpenOutput opens an output file for appending, pointing empty paths at
// the null device. Pool controllers use it for worker stdio.
func OpenOutput(path string) (*os.File, error) { return openOutput(path) }

// processAlive probes pid with the null signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// exitCodeOf extracts the exit status from a Cmd.Wait error. Signal deaths
// map to the conventional 128+signal value; any other wait failure counts
// as a generic failure.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

// openOutput opens path for appending, falling back to the null device for
// an empty path.
func openOutput(path string) (*os.File, error) {
	if path == "" {
		path = os.DevNull
	}
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("ensure output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file %s: %w", path, err)
	}
	return f, nil
}
