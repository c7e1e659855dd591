package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pixguard/internal/config"
	"pixguard/internal/daemonctl"
	"pixguard/internal/ipc"
	"pixguard/internal/preflight"
)

func newDaemonGroupCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the pixguard daemon",
	}

	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonRestartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))

	return daemonCmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the pixguard daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the pixguard daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Stopping daemon workflow...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}
}

func newDaemonRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the pixguard daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}
}

// newDaemonStatusCommand reports daemon process state only; the top-level
// `status` command renders the full system snapshot.
func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon process status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			running, pid, err := daemonctl.ProcessInfo(ctx.socketPath())
			if err != nil && !running {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, map[string]any{
					"running": running,
					"pid":     pid,
				})
			}
			if !running {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if pid > 0 {
				fmt.Fprintf(stdout, "Daemon running (pid %d)\n", pid)
			} else {
				fmt.Fprintln(stdout, "Daemon running")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show system and run status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			statusResp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, statusResp)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range buildSystemLines(cfg, statusResp, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Readiness Checks", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if len(statusResp.Checks) == 0 {
				fmt.Fprintln(stdout, renderStatusLine("Checks", statusInfo, "No checks reported", colorize))
			}
			for _, check := range statusResp.Checks {
				fmt.Fprintln(stdout, renderStatusLine(check.Name, statusKindForCheck(check.Passed), check.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			if len(statusResp.Workflow.StageHealth) > 0 {
				for _, line := range renderSectionHeader("Pipeline Stages", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, health := range statusResp.Workflow.StageHealth {
					kind := statusOK
					detail := health.Detail
					if !health.Ready {
						kind = statusWarn
						if detail == "" {
							detail = "not ready"
						}
					}
					fmt.Fprintln(stdout, renderStatusLine(health.Name, kind, detail, colorize))
				}
				fmt.Fprintln(stdout)
			}

			for _, line := range renderSectionHeader("Run Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildRunStatusRows(statusResp.Workflow.RunStats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No runs recorded")
				return nil
			}
			table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprint(stdout, table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}

// buildSystemLines combines live daemon state with config-derived readiness
// so the snapshot is informative even when the daemon is down.
func buildSystemLines(cfg *config.Config, resp *ipc.StatusResponse, colorize bool) []string {
	lines := make([]string, 0, 8)

	if resp.Running {
		detail := "Running"
		if resp.PID > 0 {
			detail = fmt.Sprintf("Running (pid %d)", resp.PID)
		}
		lines = append(lines, renderStatusLine("Pixguard", statusOK, detail, colorize))
		if resp.Workflow.Running {
			lines = append(lines, renderStatusLine("Workflow", statusOK, "Active", colorize))
		} else {
			lines = append(lines, renderStatusLine("Workflow", statusInfo, "Idle", colorize))
		}
		if strings.TrimSpace(resp.Workflow.LastError) != "" {
			lines = append(lines, renderStatusLine("Last Error", statusWarn, resp.Workflow.LastError, colorize))
		}
	} else {
		lines = append(lines, renderStatusLine("Pixguard", statusWarn, "Not running (run `pixguard daemon start`)", colorize))
	}

	if cfg == nil {
		return lines
	}

	for _, result := range []preflight.Result{
		preflight.CheckCaptionFromConfig(cfg),
		preflight.CheckProvidersFromConfig(cfg),
		preflight.CheckStorageFromConfig(cfg),
		preflight.CheckDeliveryFromConfig(cfg),
	} {
		kind := statusKindForCheck(result.Passed)
		if result.Passed && strings.EqualFold(strings.TrimSpace(result.Detail), "Disabled") {
			kind = statusInfo
		}
		lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, renderStatusLine("Notifications", statusOK, "Configured", colorize))
	} else {
		lines = append(lines, renderStatusLine("Notifications", statusWarn, "Not configured", colorize))
	}

	return lines
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
