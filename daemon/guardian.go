package daemon

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"daemonkit/logging"
	"daemonkit/markerfile"
	"daemonkit/quit"
)

// guardianMain is the top-level detached process. It owns the marker file,
// runs the spawn/wait/restart loop around one executor at a time, and
// forwards termination down the tree. The marker is released only after the
// managed executor has fully terminated.
func guardianMain(spec *LaunchSpec, logger *slog.Logger) int {
	marker, err := markerfile.Acquire(spec.MarkerPath)
	if err != nil {
		if errors.Is(err, markerfile.ErrAlreadyExists) {
			logger.Error("another instance owns the marker file",
				logging.String(logging.FieldMarkerPath, spec.MarkerPath))
			return exitMarkerHeld
		}
		logger.Error("acquire marker file", logging.Error(err))
		return exitBadSpec
	}
	defer func() {
		if err := marker.Release(); err != nil {
			logger.Error("release marker file", logging.Error(err))
		}
	}()

	tok := quit.NewToken()
	tok.Install(os.Interrupt, unix.SIGTERM)

	logger.Info("guardian started",
		logging.String(logging.FieldEntry, spec.Entry),
		logging.String(logging.FieldMarkerPath, spec.MarkerPath),
		logging.Duration("restart_interval", spec.RestartInterval))

	restarts := 0
	for {
		if tok.Requested() {
			logger.Info("shutdown requested before spawn")
			return exitOK
		}

		cmd, err := childCommand(RoleExecutor, spec)
		if err != nil {
			logger.Error("build executor command", logging.Error(err))
			return exitBadSpec
		}
		// The executor shares the guardian's redirected stdio.
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Start(); err != nil {
			logger.Error("spawn executor", logging.Error(err))
			return exitEntryFailed
		}
		pid := cmd.Process.Pid
		logger.Info("executor spawned",
			logging.Int("executor_pid", pid),
			logging.Int(logging.FieldRestartCount, restarts))

		waitCh := make(chan error, 1)
		go func() { waitCh <- cmd.Wait() }()

		var exitCode int
		select {
		case <-tok.Done():
			terminateChild(logger, pid, waitCh, spec.stopGracePeriod())
			logger.Info("guardian stopping after signal")
			return exitOK
		case err := <-waitCh:
			exitCode = exitCodeOf(err)
		}

		if exitCode == 0 {
			logger.Info("executor succeeded")
			return exitOK
		}

		logger.Warn("executor failed",
			logging.Int(logging.FieldExitCode, exitCode),
			logging.Int(logging.FieldRestartCount, restarts))

		if spec.RestartInterval <= 0 {
			logger.Info("restart disabled, guardian exiting")
			return exitCode
		}
		if !tok.Sleep(spec.RestartInterval, spec.sleepStep()) {
			logger.Info("shutdown requested during restart wait")
			return exitOK
		}
		restarts++
	}
}

// terminateChild forwards SIGTERM to pid and blocks until it exits,
// escalating to SIGKILL after the grace period.
func terminateChild(logger *slog.Logger, pid int, waitCh <-chan error, grace time.Duration) {
	if err := signalProcess(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, ErrProcessGone) {
			logger.Debug("child already gone", logging.Int(logging.FieldPID, pid))
		} else {
			logger.Warn("forward termination signal", logging.Error(err))
		}
	}
	select {
	case err := <-waitCh:
		logger.Info("child exited after signal",
			logging.Int(logging.FieldExitCode, exitCodeOf(err)))
	case <-time.After(grace):
		logger.Warn("child ignored termination signal, force killing",
			logging.Int(logging.FieldPID, pid),
			logging.Duration("grace_period", grace))
		if err := signalProcess(pid, unix.SIGKILL); err != nil && !errors.Is(err, ErrProcessGone) {
			logger.Error("force kill child", logging.Error(err))
		}
		<-waitCh
	}
}
