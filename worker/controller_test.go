package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"daemonkit/daemon"
	"daemonkit/entry"
	"daemonkit/markerfile"
	"daemonkit/quit"
)

// TestMain registers the pool entries and dispatches supervised roles, so
// worker children re-exec'd from this test binary run their entries.
func TestMain(m *testing.M) {
	entry.Register("w", "block", func(args map[string]any, q *quit.Token) error {
		for !q.Requested() {
			q.Sleep(10*time.Second, 50*time.Millisecond)
		}
		return nil
	})

	daemon.Main()
	os.Exit(m.Run())
}

func blockSpec(dir, name string) Spec {
	return Spec{
		Name:       name,
		MarkerPath: filepath.Join(dir, name+".pid"),
		Entry:      "w:block",
	}
}

func TestNewControllerValidation(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewController(nil, Options{}); err == nil {
		t.Fatal("empty pool accepted")
	}

	missingName := blockSpec(dir, "a")
	missingName.Name = ""
	if _, err := NewController([]Spec{missingName}, Options{}); err == nil {
		t.Fatal("missing name accepted")
	}

	unresolvable := blockSpec(dir, "a")
	unresolvable.Entry = "w:missing"
	if _, err := NewController([]Spec{unresolvable}, Options{}); err == nil {
		t.Fatal("unresolvable entry accepted")
	}

	if _, err := NewController([]Spec{blockSpec(dir, "a"), blockSpec(dir, "a")}, Options{}); err == nil {
		t.Fatal("duplicate name accepted")
	}

	sharedMarker := blockSpec(dir, "b")
	sharedMarker.MarkerPath = blockSpec(dir, "a").MarkerPath
	if _, err := NewController([]Spec{blockSpec(dir, "a"), sharedMarker}, Options{}); err == nil {
		t.Fatal("duplicate marker path accepted")
	}

	ctl, err := NewController([]Spec{blockSpec(dir, "a"), blockSpec(dir, "b")}, Options{})
	if err != nil {
		t.Fatalf("valid pool rejected: %v", err)
	}
	if got := len(ctl.Snapshot().Workers); got != 2 {
		t.Fatalf("snapshot workers = %d", got)
	}
}

func TestRecordHistoryBounded(t *testing.T) {
	rec := Record{}
	for i := 0; i < historyLimit+5; i++ {
		rec.appendHistory(RunHistory{PID: i})
	}
	if len(rec.History) != historyLimit {
		t.Fatalf("history length = %d", len(rec.History))
	}
	if rec.History[0].PID != 5 || rec.History[len(rec.History)-1].PID != historyLimit+4 {
		t.Fatalf("history kept wrong window: first=%d last=%d",
			rec.History[0].PID, rec.History[len(rec.History)-1].PID)
	}
}

func TestOptionsDefaults(t *testing.T) {
	var opts Options
	if opts.checkInterval() != time.Minute {
		t.Fatalf("checkInterval = %v", opts.checkInterval())
	}
	if opts.stopGracePeriod() != daemon.DefaultStopGracePeriod {
		t.Fatalf("stopGracePeriod = %v", opts.stopGracePeriod())
	}
	if opts.sleepStep() != time.Second {
		t.Fatalf("sleepStep = %v", opts.sleepStep())
	}

	opts = Options{CheckInterval: time.Second, StopGracePeriod: 2 * time.Second, SleepStep: 100 * time.Millisecond}
	if opts.checkInterval() != time.Second || opts.stopGracePeriod() != 2*time.Second || opts.sleepStep() != 100*time.Millisecond {
		t.Fatal("explicit options ignored")
	}
}

func TestStartSkipsHeldMarker(t *testing.T) {
	dir := t.TempDir()
	spec := blockSpec(dir, "held")
	if err := os.WriteFile(spec.MarkerPath, []byte("12345\n"), 0o644); err != nil {
		t.Fatalf("plant marker: %v", err)
	}

	ctl, err := NewController([]Spec{spec}, Options{})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	ctl.mu.Lock()
	ctl.start(ctl.workers[0])
	ctl.mu.Unlock()

	w := ctl.Snapshot().Workers[0]
	if w.State != StateStarting || w.PID != 0 {
		t.Fatalf("worker spawned despite held marker: %+v", w)
	}
}

func TestSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "status", "pool.json")

	ctl, err := NewController([]Spec{blockSpec(dir, "a")}, Options{SnapshotPath: snapshotPath})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	ctl.writeSnapshot()

	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	if len(snap.Workers) != 1 || snap.Workers[0].Name != "a" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.UpdatedAt.IsZero() {
		t.Fatal("snapshot missing timestamp")
	}
}

func TestPoolRestartsOnlyKilledWorker(t *testing.T) {
	dir := t.TempDir()
	specs := []Spec{
		blockSpec(dir, "w-1"),
		blockSpec(dir, "w-2"),
		blockSpec(dir, "w-3"),
	}
	opts := Options{
		CheckInterval:   100 * time.Millisecond,
		RestartInterval: 50 * time.Millisecond,
		SleepStep:       50 * time.Millisecond,
		StopGracePeriod: 5 * time.Second,
		SnapshotPath:    filepath.Join(dir, "pool.json"),
	}

	ctl, err := NewController(specs, opts)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	q := quit.NewToken()
	runDone := make(chan error, 1)
	go func() { runDone <- ctl.Run(q) }()
	stopped := false
	defer func() {
		if stopped {
			return
		}
		q.Trip()
		select {
		case <-runDone:
		case <-time.After(15 * time.Second):
			t.Error("pool never shut down")
		}
	}()

	pids := waitForPool(t, ctl, func(workers map[string]Record) bool {
		for _, name := range []string{"w-1", "w-2", "w-3"} {
			if workers[name].State != StateRunning || workers[name].PID <= 0 {
				return false
			}
		}
		return true
	})

	if err := daemon.ForceKill(pids["w-2"]); err != nil {
		t.Fatalf("kill w-2: %v", err)
	}

	after := waitForPool(t, ctl, func(workers map[string]Record) bool {
		w2 := workers["w-2"]
		return w2.State == StateRunning && w2.RestartCount == 1 && w2.PID != pids["w-2"]
	})

	for _, name := range []string{"w-1", "w-3"} {
		if after[name] != pids[name] {
			t.Fatalf("%s was restarted: pid %d -> %d", name, pids[name], after[name])
		}
	}

	snap := ctl.Snapshot()
	for _, rec := range snap.Workers {
		if rec.Name != "w-2" && rec.RestartCount != 0 {
			t.Fatalf("%s restart count = %d", rec.Name, rec.RestartCount)
		}
	}

	var w2 Record
	for _, rec := range snap.Workers {
		if rec.Name == "w-2" {
			w2 = rec
		}
	}
	if len(w2.History) == 0 {
		t.Fatal("killed worker has no run history")
	}
	if got := w2.History[len(w2.History)-1].ExitCode; got != 137 {
		t.Fatalf("killed run exit code = %d", got)
	}

	q.Trip()
	select {
	case err := <-runDone:
		stopped = true
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("pool never shut down")
	}

	final := ctl.Snapshot()
	for _, rec := range final.Workers {
		if rec.State != StateStopped {
			t.Fatalf("%s final state = %s", rec.Name, rec.State)
		}
		if markerfile.Exists(rec.MarkerPath) {
			t.Fatalf("%s marker survived shutdown", rec.Name)
		}
	}
}

// waitForPool polls the controller snapshot until cond holds, returning the
// worker pids keyed by name.
func waitForPool(t *testing.T, ctl *Controller, cond func(map[string]Record) bool) map[string]int {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		workers := make(map[string]Record)
		for _, rec := range ctl.Snapshot().Workers {
			workers[rec.Name] = rec
		}
		if cond(workers) {
			pids := make(map[string]int, len(workers))
			for name, rec := range workers {
				pids[name] = rec.PID
			}
			return pids
		}
		if time.Now().After(deadline) {
			var state []string
			for name, rec := range workers {
				state = append(state, fmt.Sprintf("%s=%s/%d", name, rec.State, rec.PID))
			}
			t.Fatalf("pool never reached expected state: %s", strings.Join(state, " "))
		}
		time.Sleep(50 * time.Millisecond)
	}
}
