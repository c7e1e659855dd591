package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pixguard/internal/api"
	"pixguard/internal/catalog"
	"pixguard/internal/ipc"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and manage scan runs",
	}

	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsRetryCommand(ctx))
	runsCmd.AddCommand(newRunsResetCommand(ctx))
	runsCmd.AddCommand(newRunsClearCommand(ctx))
	runsCmd.AddCommand(newRunsHealthCommand(ctx))

	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scan runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var runs []api.Run
				if client != nil {
					resp, err := client.RunList(listStatuses)
					if err != nil {
						return err
					}
					runs = resp.Runs
				} else {
					var statuses []catalog.Status
					for _, raw := range listStatuses {
						if parsed, ok := catalog.ParseStatus(raw); ok {
							statuses = append(statuses, parsed)
						}
					}
					listed, err := api.NewRunService(store).List(cmd.Context(), statuses...)
					if err != nil {
						return err
					}
					runs = listed
				}

				if jsonOut {
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Owner", "Image", "Status", "Matches", "Created"},
					buildRunListRows(runs),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by run status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "run")
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var run *api.Run
				if client != nil {
					resp, err := client.RunDescribe(id)
					if err != nil {
						return err
					}
					run = &resp.Run
				} else {
					described, err := api.NewRunService(store).Describe(cmd.Context(), id)
					if err != nil {
						return err
					}
					run = described
				}
				if run == nil {
					return fmt.Errorf("run %d not found", id)
				}

				if jsonOut {
					return writeJSON(cmd, run)
				}
				printRunDetail(cmd, *run)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}

func printRunDetail(cmd *cobra.Command, run api.Run) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	kind := statusInfo
	switch catalog.Status(run.Status) {
	case catalog.StatusCompleted:
		kind = statusOK
	case catalog.StatusFailed:
		kind = statusError
	case catalog.StatusReview:
		kind = statusWarn
	}

	fmt.Fprintln(out, renderStatusLine("Run", kind, fmt.Sprintf("%d (%s)", run.ID, formatStatusLabel(run.Status)), colorize))
	fmt.Fprintln(out, renderStatusLine("Owner", statusInfo, run.Owner, colorize))
	if run.OriginalFilename != "" {
		fmt.Fprintln(out, renderStatusLine("Image", statusInfo, run.OriginalFilename, colorize))
	}
	if run.SourceAssetID > 0 {
		fmt.Fprintln(out, renderStatusLine("Asset", statusInfo, fmt.Sprintf("%d", run.SourceAssetID), colorize))
	}
	if run.Progress.Stage != "" {
		detail := fmt.Sprintf("%s %.0f%%", run.Progress.Stage, run.Progress.Percent)
		if run.Progress.Message != "" {
			detail += " - " + run.Progress.Message
		}
		fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, detail, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Matches", statusInfo, fmt.Sprintf("%d", run.MatchCount), colorize))
	for _, failure := range run.ProviderFailures {
		fmt.Fprintln(out, renderStatusLine("Degraded", statusWarn, failure, colorize))
	}
	if run.NeedsReview {
		fmt.Fprintln(out, renderStatusLine("Review", statusWarn, run.ReviewReason, colorize))
	}
	if run.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, run.ErrorMessage, colorize))
	}
	if run.CreatedAt != "" {
		fmt.Fprintln(out, renderStatusLine("Created", statusInfo, formatDisplayTime(run.CreatedAt), colorize))
	}
}

func newRunsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [run-id...]",
		Short: "Retry failed runs",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "run")
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var updated int64
				if client != nil {
					resp, err := client.RunRetry(ids)
					if err != nil {
						return err
					}
					updated = resp.Updated
				} else {
					count, err := store.RetryFailed(cmd.Context(), ids...)
					if err != nil {
						return err
					}
					updated = count
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed run(s)\n", updated)
				return nil
			})
		},
	}
}

func newRunsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return in-flight runs to their lane entry status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var updated int64
				if client != nil {
					resp, err := client.RunReset()
					if err != nil {
						return err
					}
					updated = resp.Updated
				} else {
					count, err := store.ResetStuckProcessing(cmd.Context())
					if err != nil {
						return err
					}
					updated = count
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d run(s)\n", updated)
				return nil
			})
		},
	}
}

func newRunsClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove run records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var removed int64
				var label string
				switch {
				case clearCompleted:
					label = "completed run(s)"
					if client != nil {
						resp, err := client.RunClearCompleted()
						if err != nil {
							return err
						}
						removed = resp.Removed
					} else {
						count, err := store.ClearCompleted(cmd.Context())
						if err != nil {
							return err
						}
						removed = count
					}
				case clearFailed:
					label = "failed run(s)"
					if client != nil {
						resp, err := client.RunClearFailed()
						if err != nil {
							return err
						}
						removed = resp.Removed
					} else {
						count, err := store.ClearFailed(cmd.Context())
						if err != nil {
							return err
						}
						removed = count
					}
				default:
					label = "run(s)"
					if client != nil {
						resp, err := client.RunClear()
						if err != nil {
							return err
						}
						removed = resp.Removed
					} else {
						count, err := store.ClearRuns(cmd.Context())
						if err != nil {
							return err
						}
						removed = count
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s\n", removed, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed runs")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed runs")
	return cmd
}

func newRunsHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show run health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var health catalog.HealthSummary
				if client != nil {
					resp, err := client.RunHealth()
					if err != nil {
						return err
					}
					health = catalog.HealthSummary{
						Total:      resp.Total,
						Pending:    resp.Pending,
						Processing: resp.Processing,
						Review:     resp.Review,
						Failed:     resp.Failed,
						Completed:  resp.Completed,
					}
				} else {
					summary, err := store.Health(cmd.Context())
					if err != nil {
						return err
					}
					health = summary
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Total: %d\nPending: %d\nProcessing: %d\nFailed: %d\nReview: %d\nCompleted: %d\n",
					health.Total,
					health.Pending,
					health.Processing,
					health.Failed,
					health.Review,
					health.Completed,
				)
				return nil
			})
		},
	}
}
