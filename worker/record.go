package worker

import "time"

// State is the lifecycle state of one worker process.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateCrashed  State = "crashed"
)

// historyLimit bounds how many past runs a record keeps.
const historyLimit = 10

// RunHistory records one completed run of a worker process.
type RunHistory struct {
	SpawnID   string    `json:"spawn_id"`
	PID       int       `json:"pid"`
	ExitCode  int       `json:"exit_code"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Record is the controller's view of one worker, serialized into the debug
// snapshot.
type Record struct {
	Name         string       `json:"name"`
	Entry        string       `json:"entry"`
	MarkerPath   string       `json:"marker_path"`
	State        State        `json:"state"`
	PID          int          `json:"pid,omitempty"`
	SpawnID      string       `json:"spawn_id,omitempty"`
	RestartCount int          `json:"restart_count"`
	LastExitCode *int         `json:"last_exit_code,omitempty"`
	LastStart    *time.Time   `json:"last_start,omitempty"`
	NextStart    *time.Time   `json:"next_start,omitempty"`
	History      []RunHistory `json:"history,omitempty"`
}

func (r *Record) appendHistory(run RunHistory) {
	r.History = append(r.History, run)
	if len(r.History) > historyLimit {
		r.History = r.History[len(r.History)-historyLimit:]
	}
}

// Snapshot is the point-in-time serialization of all process records.
type Snapshot struct {
	UpdatedAt time.Time `json:"updated_at"`
	Workers   []Record  `json:"workers"`
}
