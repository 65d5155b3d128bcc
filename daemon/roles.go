package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"daemonkit/logging"
)

// Environment variables carrying role dispatch across the re-exec boundary.
const (
	EnvRole = "DAEMONKIT_ROLE"
	EnvSpec = "DAEMONKIT_SPEC"
)

// Process roles.
const (
	RoleGuardian = "guardian"
	RoleExecutor = "executor"
	RoleWorker   = "worker"
)

// Child process exit codes. Only zero versus non-zero is contractual; the
// distinct values exist for log forensics.
const (
	exitOK          = 0
	exitEntryFailed = 1
	exitBadSpec     = 2
	exitMarkerHeld  = 3
)

// Main dispatches supervised-process roles. Programs embedding daemonkit
// must call it at the top of main(): when the current process was spawned
// as a guardian, executor, or worker it runs that role and exits, otherwise
// it returns immediately.
func Main() {
	role := strings.TrimSpace(os.Getenv(EnvRole))
	if role == "" {
		return
	}
	os.Exit(runRole(role))
}

func runRole(role string) int {
	spec, err := decodeSpec(os.Getenv(EnvSpec))
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemonkit: %s: %v\n", role, err)
		return exitBadSpec
	}

	logger := roleLogger(spec, role)
	// Entry functions receive only args and the quit token; the process
	// default logger is how they log.
	slog.SetDefault(logger)

	switch role {
	case RoleGuardian:
		return guardianMain(spec, logger)
	case RoleExecutor, RoleWorker:
		return executorMain(spec, logger)
	default:
		fmt.Fprintf(os.Stderr, "daemonkit: unknown role %q\n", role)
		return exitBadSpec
	}
}

// roleLogger applies the spec's opaque logging configuration, falling back
// to console output on the process's (already redirected) streams.
func roleLogger(spec *LaunchSpec, role string) *slog.Logger {
	opts := logging.Options{}
	if spec.Logging != nil {
		opts = *spec.Logging
	}
	logger, err := logging.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemonkit: %s: init logging: %v\n", role, err)
		logger = logging.NewNop()
	}
	return logging.NewComponentLogger(logger, role).With(
		logging.String(logging.FieldDaemon, spec.displayName()),
		logging.Int(logging.FieldPID, os.Getpid()),
	)
}

// NewWorkerCommand builds the re-exec command for a worker child. The pool
// controller owns the child's stdio and marker file.
func NewWorkerCommand(spec *LaunchSpec) (*exec.Cmd, error) {
	return childCommand(RoleWorker, spec)
}

// childCommand builds the re-exec command for a child in the given role.
func childCommand(role string, spec *LaunchSpec) (*exec.Cmd, error) {
	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	encoded, err := encodeSpec(spec)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(executable)
	cmd.Env = append(environWithout(EnvRole, EnvSpec),
		EnvRole+"="+role,
		EnvSpec+"="+encoded,
	)
	return cmd, nil
}

// spawnDetached launches a guardian in its own session with stdio pointed
// at the spec's output files, then releases the process handle so the
// caller never holds a waitable child.
func spawnDetached(spec *LaunchSpec) (int, error) {
	cmd, err := childCommand(RoleGuardian, spec)
	if err != nil {
		return 0, err
	}

	stdin, err := os.Open(os.DevNull)
	if err != nil {
		return 0, fmt.Errorf("open null device: %w", err)
	}
	defer stdin.Close()

	stdout, err := openOutput(spec.StdoutPath)
	if err != nil {
		return 0, err
	}
	defer stdout.Close()

	stderr := stdout
	if spec.StderrPath != spec.StdoutPath {
		stderr, err = openOutput(spec.StderrPath)
		if err != nil {
			return 0, err
		}
		defer stderr.Close()
	}

	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("launch guardian: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release guardian process: %w", err)
	}
	return pid, nil
}

func environWithout(keys ...string) []string {
	env := os.Environ()
	out := env[:0]
	for _, kv := range env {
		skip := false
		for _, key := range keys {
			if strings.HasPrefix(kv, key+"=") {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, kv)
		}
	}
	return out
}
