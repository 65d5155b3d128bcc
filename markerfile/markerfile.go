// Package markerfile implements the filesystem-based exclusivity primitive
// used to guarantee a single live instance per supervised process.
//
// A marker is a small file holding the owning process id. Creation uses
// O_CREATE|O_EXCL so acquisition is atomic: at most one caller wins per path,
// and everyone else observes ErrAlreadyExists. Absence of the file is the
// sole signal that no owner is running.
//
// A marker left behind by an uncleanly killed owner is deliberately not
// cleaned up here; resolving it is an operator action.
package markerfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrAlreadyExists indicates the marker path is already owned.
var ErrAlreadyExists = errors.New("marker file already exists")

// Marker represents an acquired marker file.
type Marker struct {
	path string
	pid  int
}

// Acquire atomically creates the marker at path, recording the calling
// process id as owner. Returns ErrAlreadyExists when the path is taken.
func Acquire(path string) (*Marker, error) {
	return AcquireOwned(path, os.Getpid())
}

// AcquireOwned atomically creates the marker at path on behalf of pid. Used
// by pool controllers that create markers for their worker processes.
func AcquireOwned(path string, pid int) (*Marker, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("marker path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure marker directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		}
		return nil, fmt.Errorf("create marker file %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", pid); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("write marker file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close marker file %s: %w", path, err)
	}
	return &Marker{path: path, pid: pid}, nil
}

// Path returns the marker file path.
func (m *Marker) Path() string { return m.path }

// PID returns the recorded owner process id.
func (m *Marker) PID() int { return m.pid }

// Release deletes the marker file. Safe to call more than once; a missing
// file is not an error so release can sit on every exit path.
func (m *Marker) Release() error {
	if m == nil || m.path == "" {
		return nil
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove marker file %s: %w", m.path, err)
	}
	return nil
}

// ReadPID reads the owner pid recorded at path. Returns ok=false when the
// marker does not exist.
func ReadPID(path string) (pid int, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read marker file %s: %w", path, err)
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, fmt.Errorf("parse marker file %s: %w", path, err)
	}
	return value, true, nil
}

// Exists reports whether a marker is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
