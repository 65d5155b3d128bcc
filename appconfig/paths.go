package appconfig

import (
	"path/filepath"

	"daemonkit/logging"
)

// DaemonPaths bundles the conventional file locations for one daemon.
type DaemonPaths struct {
	MarkerPath   string
	StdoutPath   string
	StderrPath   string
	LogPath      string
	SnapshotPath string
}

// DaemonPaths computes the conventional locations for the named daemon.
func (c *Config) DaemonPaths(daemon string) DaemonPaths {
	return DaemonPaths{
		MarkerPath:   filepath.Join(c.PidDir(), daemon+".pid"),
		StdoutPath:   filepath.Join(c.LogDir(), daemon+"-out.txt"),
		StderrPath:   filepath.Join(c.LogDir(), daemon+"-err.txt"),
		LogPath:      filepath.Join(c.LogDir(), daemon+".log"),
		SnapshotPath: filepath.Join(c.StatusDir(), daemon+".json"),
	}
}

// WorkerPaths computes the conventional locations for a named worker inside
// a daemon's pool. Worker files nest one level below their daemon's.
func (c *Config) WorkerPaths(daemon, worker string) DaemonPaths {
	return DaemonPaths{
		MarkerPath: filepath.Join(c.PidDir(), daemon, worker+".pid"),
		StdoutPath: filepath.Join(c.LogDir(), daemon, worker+"-out.txt"),
		StderrPath: filepath.Join(c.LogDir(), daemon, worker+"-err.txt"),
		LogPath:    filepath.Join(c.LogDir(), daemon, worker+".log"),
	}
}

// LoggerOptions builds the opaque logging configuration handed to a
// launched process, combining app-level defaults with the target log file.
// An explicit level (from a daemon definition) overrides the app default.
func (c *Config) LoggerOptions(logPath, level string) *logging.Options {
	if level == "" {
		level = c.Logging.Level
	}
	return &logging.Options{
		Level:            level,
		Format:           c.Logging.Format,
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	}
}
