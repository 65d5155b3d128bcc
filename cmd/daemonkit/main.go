package main

import (
	"fmt"
	"os"

	"daemonkit/daemon"
)

func main() {
	registerEntries()

	// Role dispatch must run before anything else: when this process was
	// spawned as a guardian, executor, or worker, Main never returns.
	daemon.Main()

	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
