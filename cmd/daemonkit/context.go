package main

import (
	"fmt"
	"strings"
	"sync"

	"daemonkit/appconfig"
)

type commandContext struct {
	configFlag *string

	once    sync.Once
	config  *appconfig.Config
	daemons *appconfig.DaemonsFile
	loadErr error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensure loads the app config and daemon definitions once per invocation.
func (c *commandContext) ensure() (*appconfig.Config, *appconfig.DaemonsFile, error) {
	c.once.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := appconfig.Load(path)
		if err != nil {
			c.loadErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.loadErr = err
			return
		}
		daemons, err := appconfig.LoadDaemons(cfg.DaemonsPath())
		if err != nil {
			c.loadErr = err
			return
		}
		c.config = cfg
		c.daemons = daemons
	})
	return c.config, c.daemons, c.loadErr
}

// lookupDaemon resolves a named daemon definition or fails with the list of
// known names.
func (c *commandContext) lookupDaemon(name string) (*appconfig.Config, appconfig.DaemonDefinition, error) {
	cfg, daemons, err := c.ensure()
	if err != nil {
		return nil, appconfig.DaemonDefinition{}, err
	}
	def, ok := daemons.Lookup(name)
	if !ok {
		return nil, appconfig.DaemonDefinition{}, fmt.Errorf("daemon %q is not declared (known: %s)",
			name, strings.Join(daemons.Names(), ", "))
	}
	return cfg, def, nil
}
