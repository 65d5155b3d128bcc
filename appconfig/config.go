// Package appconfig loads and validates the application-level configuration
// shared by the CLI and launched daemons.
//
// It supplies defaults, reads the TOML config file, and owns the filesystem
// conventions: marker files under a pids directory keyed by application and
// daemon name, output and log files under a parallel logs directory, and
// one debug snapshot file per worker pool under a status directory. Daemon
// definitions live separately in a YAML file (see daemons.go).
package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"daemonkit/internal/fileutil"
)

// Config is the application configuration.
type Config struct {
	// Name keys the pids/logs/status subdirectories for this application.
	Name string `toml:"name"`

	// RootDir is the base directory under which pids/, logs/, and status/
	// live.
	RootDir string `toml:"root_dir"`

	Logging Logging `toml:"logging"`
}

// Logging carries default logger settings for launched daemons.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "DAEMONKIT_CONFIG"

// Default returns the built-in configuration.
func Default() Config {
	root := ""
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, ".local", "share", "daemonkit")
	}
	return Config{
		Name:    "default",
		RootDir: root,
		Logging: Logging{Level: "info", Format: "console"},
	}
}

// DefaultPath returns the config file location honoring the environment
// override.
func DefaultPath() string {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "daemonkit", "config.toml")
}

// Load reads the configuration at path, falling back to DefaultPath for an
// empty path and to built-in defaults when no file exists.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// No file means defaults.
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.Name = strings.TrimSpace(c.Name)
	c.RootDir = strings.TrimSpace(c.RootDir)
	if strings.HasPrefix(c.RootDir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("expand root_dir: %w", err)
		}
		c.RootDir = filepath.Join(home, strings.TrimPrefix(c.RootDir, "~"))
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	return nil
}

// Validate reports configuration errors a launch would otherwise hit later.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("config: name is required")
	}
	if c.RootDir == "" {
		return errors.New("config: root_dir is required")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("config: logging.format %q is not supported", c.Logging.Format)
	}
	return nil
}

// PidDir returns the marker-file directory for this application.
func (c *Config) PidDir() string { return filepath.Join(c.RootDir, "pids", c.Name) }

// LogDir returns the log/output directory for this application.
func (c *Config) LogDir() string { return filepath.Join(c.RootDir, "logs", c.Name) }

// StatusDir returns the debug-snapshot directory for this application.
func (c *Config) StatusDir() string { return filepath.Join(c.RootDir, "status", c.Name) }

// EnsureDirectories creates the pids/logs/status tree.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.PidDir(), c.LogDir(), c.StatusDir()} {
		if err := fileutil.EnsureDir(dir); err != nil {
			return fmt.Errorf("ensure directory %s: %w", dir, err)
		}
	}
	return nil
}
