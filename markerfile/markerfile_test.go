package markerfile_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"daemonkit/markerfile"
)

func TestAcquireWritesOwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pids", "app", "d1.pid")

	m, err := markerfile.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = m.Release() })

	pid, ok, err := markerfile.ReadPID(path)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if !ok {
		t.Fatal("expected marker to exist")
	}
	if pid != os.Getpid() {
		t.Fatalf("ReadPID = %d, want %d", pid, os.Getpid())
	}
}

func TestAcquireFailsWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d1.pid")

	first, err := markerfile.Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	t.Cleanup(func() { _ = first.Release() })

	if _, err := markerfile.Acquire(path); !errors.Is(err, markerfile.ErrAlreadyExists) {
		t.Fatalf("second Acquire error = %v, want ErrAlreadyExists", err)
	}
}

func TestReleaseRemovesFileAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d1.pid")

	m, err := markerfile.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if markerfile.Exists(path) {
		t.Fatal("marker still present after release")
	}
	if err := m.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	// Path is reacquirable once released.
	again, err := markerfile.Acquire(path)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = again.Release()
}

func TestAcquireOwnedRecordsGivenPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w1.pid")

	m, err := markerfile.AcquireOwned(path, 4242)
	if err != nil {
		t.Fatalf("AcquireOwned: %v", err)
	}
	t.Cleanup(func() { _ = m.Release() })

	pid, ok, err := markerfile.ReadPID(path)
	if err != nil || !ok {
		t.Fatalf("ReadPID: pid=%d ok=%v err=%v", pid, ok, err)
	}
	if pid != 4242 {
		t.Fatalf("ReadPID = %d, want 4242", pid)
	}
}

func TestReadPIDMissingFile(t *testing.T) {
	_, ok, err := markerfile.ReadPID(filepath.Join(t.TempDir(), "missing.pid"))
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing marker")
	}
}

func TestReadPIDRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := markerfile.ReadPID(path); err == nil {
		t.Fatal("expected parse error")
	}
}
