package appconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"daemonkit/entry"
)

// DaemonDefinition is one declarative daemon record from daemons.yaml.
type DaemonDefinition struct {
	Description            string         `yaml:"description"`
	Entry                  string         `yaml:"entry"`
	Args                   map[string]any `yaml:"args"`
	RestartIntervalSeconds float64        `yaml:"restart_interval_seconds"`
	LogLevel               string         `yaml:"log_level"`
}

// RestartInterval converts the declared seconds to a duration; zero means
// no restart.
func (d DaemonDefinition) RestartInterval() time.Duration {
	if d.RestartIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(d.RestartIntervalSeconds * float64(time.Second))
}

// DaemonsFile is the parsed daemons.yaml.
type DaemonsFile struct {
	Daemons map[string]DaemonDefinition `yaml:"daemons"`
}

// Names returns the declared daemon names in sorted order.
func (f *DaemonsFile) Names() []string {
	names := make([]string, 0, len(f.Daemons))
	for name := range f.Daemons {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the definition for name.
func (f *DaemonsFile) Lookup(name string) (DaemonDefinition, bool) {
	def, ok := f.Daemons[name]
	return def, ok
}

// DaemonsPath returns the conventional daemons.yaml location next to the
// application's root directory.
func (c *Config) DaemonsPath() string {
	return filepath.Join(c.RootDir, "daemons.yaml")
}

// LoadDaemons reads and validates a daemons.yaml file. Every definition
// must carry a well-formed "container:name" entry reference; whether the
// reference is registered is checked at launch time, by the registry.
func LoadDaemons(path string) (*DaemonsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read daemon definitions %s: %w", path, err)
	}
	var file DaemonsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse daemon definitions %s: %w", path, err)
	}
	if len(file.Daemons) == 0 {
		return nil, errors.New("daemon definitions: no daemons declared")
	}
	for name, def := range file.Daemons {
		if _, _, err := entry.SplitReference(def.Entry); err != nil {
			return nil, fmt.Errorf("daemon %q: %w", name, err)
		}
	}
	return &file, nil
}
