package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"daemonkit/logging"
)

// Default timing knobs applied when a LaunchSpec leaves them zero.
const (
	DefaultSleepStep       = time.Second
	DefaultStopGracePeriod = 30 * time.Second
	DefaultLaunchTimeout   = 10 * time.Second
)

// LaunchSpec describes one daemon launch. It is created by the caller,
// consumed once by StartDaemon, and treated as immutable afterwards.
type LaunchSpec struct {
	// Name identifies the daemon in logs and defaults to the entry
	// container when empty.
	Name string `json:"name"`

	// MarkerPath is the exclusive marker (pid) file owned by the guardian.
	MarkerPath string `json:"marker_path"`

	// Entry references a registered entry function as "container:name".
	Entry string `json:"entry"`

	// Args is the keyword-argument mapping handed to the entry. Values must
	// survive a JSON round trip since the spec crosses a process boundary.
	Args map[string]any `json:"args,omitempty"`

	// StdoutPath and StderrPath receive the detached process tree's output;
	// empty values point at the null device.
	StdoutPath string `json:"stdout_path,omitempty"`
	StderrPath string `json:"stderr_path,omitempty"`

	// Logging is applied opaquely inside the spawned processes. Nil keeps
	// logging on the (already redirected) standard streams at defaults.
	Logging *logging.Options `json:"logging,omitempty"`

	// RestartInterval is how long the guardian waits before respawning a
	// failed executor. Zero disables restarts.
	RestartInterval time.Duration `json:"restart_interval,omitempty"`

	// SleepStep bounds the latency of interruptible waits.
	SleepStep time.Duration `json:"sleep_step,omitempty"`

	// StopGracePeriod is how long a supervisor waits for a signalled child
	// before force-killing it.
	StopGracePeriod time.Duration `json:"stop_grace_period,omitempty"`
}

// Validate checks the parts of the spec that must hold before any process
// is spawned.
func (s *LaunchSpec) Validate() error {
	if s == nil {
		return errors.New("launch spec is required")
	}
	if strings.TrimSpace(s.MarkerPath) == "" {
		return errors.New("launch spec: marker path is required")
	}
	if strings.TrimSpace(s.Entry) == "" {
		return errors.New("launch spec: entry reference is required")
	}
	if _, err := json.Marshal(s.Args); err != nil {
		return fmt.Errorf("launch spec: args are not encodable: %w", err)
	}
	return nil
}

func (s *LaunchSpec) displayName() string {
	if strings.TrimSpace(s.Name) != "" {
		return s.Name
	}
	return s.Entry
}

func (s *LaunchSpec) sleepStep() time.Duration {
	if s.SleepStep > 0 {
		return s.SleepStep
	}
	return DefaultSleepStep
}

func (s *LaunchSpec) stopGracePeriod() time.Duration {
	if s.StopGracePeriod > 0 {
		return s.StopGracePeriod
	}
	return DefaultStopGracePeriod
}

// RunStatus enumerates the synchronous outcome of StartDaemon.
type RunStatus string

const (
	StatusStarted        RunStatus = "started"
	StatusAlreadyRunning RunStatus = "already_running"
)

// RunResult is returned synchronously to the StartDaemon caller.
type RunResult struct {
	Status     RunStatus
	PID        int
	MarkerPath string
}

func encodeSpec(spec *LaunchSpec) (string, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("encode launch spec: %w", err)
	}
	return string(data), nil
}

func decodeSpec(value string) (*LaunchSpec, error) {
	var spec LaunchSpec
	if err := json.Unmarshal([]byte(value), &spec); err != nil {
		return nil, fmt.Errorf("decode launch spec: %w", err)
	}
	return &spec, nil
}
