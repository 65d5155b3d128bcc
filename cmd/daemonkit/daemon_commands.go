package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"daemonkit/daemon"
	"daemonkit/worker"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List declared daemons and their current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, daemons, err := ctx.ensure()
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			color := isTerminal(stdout)

			rows := make([][]string, 0, len(daemons.Names()))
			for _, name := range daemons.Names() {
				def, _ := daemons.Lookup(name)
				state, pid := probeState(cfg.DaemonPaths(name).MarkerPath)
				pidText := ""
				if pid > 0 {
					pidText = strconv.Itoa(pid)
				}
				rows = append(rows, []string{
					name,
					def.Entry,
					paintState(state, color),
					pidText,
					def.Description,
				})
			}

			fmt.Fprintln(stdout, renderTable(
				[]string{"Name", "Entry", "State", "PID", "Description"},
				rows,
				3,
			))
			return nil
		},
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <daemon>",
		Short: "Launch a declared daemon under its guardian",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cfg, def, err := ctx.lookupDaemon(name)
			if err != nil {
				return err
			}

			paths := cfg.DaemonPaths(name)
			spec := &daemon.LaunchSpec{
				Name:            name,
				MarkerPath:      paths.MarkerPath,
				Entry:           def.Entry,
				Args:            def.Args,
				StdoutPath:      paths.StdoutPath,
				StderrPath:      paths.StderrPath,
				Logging:         cfg.LoggerOptions(paths.LogPath, def.LogLevel),
				RestartInterval: def.RestartInterval(),
			}

			result, err := daemon.StartDaemon(spec)
			if err != nil {
				return fmt.Errorf("start %s: %w", name, err)
			}

			stdout := cmd.OutOrStdout()
			switch result.Status {
			case daemon.StatusAlreadyRunning:
				fmt.Fprintf(stdout, "%s is already running (pid %d)\n", name, result.PID)
			default:
				fmt.Fprintf(stdout, "Started %s (pid %d)\n", name, result.PID)
			}
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "stop <daemon>",
		Short: "Signal a running daemon to shut down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cfg, _, err := ctx.lookupDaemon(name)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			markerPath := cfg.DaemonPaths(name).MarkerPath

			pid, err := daemon.Stop(markerPath)
			if errors.Is(err, daemon.ErrNotRunning) {
				fmt.Fprintf(stdout, "%s is not running\n", name)
				return nil
			}
			if errors.Is(err, daemon.ErrStaleMarker) {
				return fmt.Errorf("%s left a stale marker at %s; remove it after confirming the process is gone", name, markerPath)
			}
			if err != nil {
				return fmt.Errorf("stop %s: %w", name, err)
			}

			fmt.Fprintf(stdout, "Stopping %s (pid %d)...\n", name, pid)
			if wait <= 0 {
				return nil
			}
			if err := daemon.WaitForExit(markerPath, wait, nil); err != nil {
				return fmt.Errorf("stop %s: %w", name, err)
			}
			fmt.Fprintf(stdout, "%s stopped\n", name)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "How long to wait for the daemon to exit (0 to return immediately)")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <daemon>",
		Short: "Show a daemon's state and, when present, its worker pool snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cfg, def, err := ctx.lookupDaemon(name)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			color := isTerminal(stdout)
			paths := cfg.DaemonPaths(name)

			state, pid := probeState(paths.MarkerPath)
			fmt.Fprintf(stdout, "Daemon:  %s\n", name)
			fmt.Fprintf(stdout, "Entry:   %s\n", def.Entry)
			fmt.Fprintf(stdout, "State:   %s\n", paintState(state, color))
			if pid > 0 {
				fmt.Fprintf(stdout, "PID:     %d\n", pid)
			}
			fmt.Fprintf(stdout, "Marker:  %s\n", paths.MarkerPath)
			fmt.Fprintf(stdout, "Log:     %s\n", paths.LogPath)

			snapshot, err := readSnapshot(paths.SnapshotPath)
			if err != nil {
				return err
			}
			if snapshot == nil {
				return nil
			}

			fmt.Fprintf(stdout, "\nWorkers (as of %s):\n", snapshot.UpdatedAt.Format(time.RFC3339))
			rows := make([][]string, 0, len(snapshot.Workers))
			for _, rec := range snapshot.Workers {
				pidText := ""
				if rec.PID > 0 {
					pidText = strconv.Itoa(rec.PID)
				}
				exitText := ""
				if rec.LastExitCode != nil {
					exitText = strconv.Itoa(*rec.LastExitCode)
				}
				lastStart := ""
				if rec.LastStart != nil {
					lastStart = rec.LastStart.Format(time.RFC3339)
				}
				rows = append(rows, []string{
					rec.Name,
					string(rec.State),
					pidText,
					strconv.Itoa(rec.RestartCount),
					exitText,
					lastStart,
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Worker", "State", "PID", "Restarts", "Last Exit", "Last Start"},
				rows,
				3, 4, 5,
			))
			return nil
		},
	}
}

// probeState classifies a daemon marker into an operator-facing state.
func probeState(markerPath string) (string, int) {
	pid, running, err := daemon.Probe(markerPath)
	switch {
	case err != nil:
		return "unknown", 0
	case running:
		return "running", pid
	case pid > 0:
		return "stale", pid
	default:
		return "stopped", 0
	}
}

// readSnapshot loads a worker pool snapshot; a missing file means the
// daemon runs no pool (or has not written one yet) and is not an error.
func readSnapshot(path string) (*worker.Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snapshot worker.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return &snapshot, nil
}
