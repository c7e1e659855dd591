package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pixguard/internal/api"
	"pixguard/internal/catalog"
	"pixguard/internal/ipc"
)

const scanPollInterval = 500 * time.Millisecond

func newScanCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var wait bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Scan an image for infringing copies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve image path: %w", err)
			}

			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				if client != nil {
					resp, err := client.Scan(path, owner)
					if err != nil {
						return err
					}
					if !wait {
						return printQueuedRun(cmd, resp.Run, jsonOut)
					}
					result, err := waitForRunResult(cmd.Context(), client, resp.Run.ID)
					if err != nil {
						return err
					}
					return printScanResult(cmd, result, jsonOut)
				}

				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				outcome, err := api.ScanImage(cmd.Context(), api.ScanImageRequest{
					Config: cfg,
					Store:  store,
					Path:   path,
					Owner:  owner,
					Wait:   wait,
				})
				if err != nil {
					return err
				}
				if outcome.Result != nil {
					return printScanResult(cmd, *outcome.Result, jsonOut)
				}
				if outcome.Queued == nil {
					return fmt.Errorf("scan produced no run")
				}
				if err := printQueuedRun(cmd, *outcome.Queued, jsonOut); err != nil {
					return err
				}
				if !jsonOut {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running; the run stays pending until it starts")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner the image belongs to (required)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the scan finishes and print the result")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newRescanCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "rescan <asset-id>",
		Short: "Run the match pipeline again for a protected asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assetID, err := parseID(args[0], "asset")
			if err != nil {
				return err
			}

			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				if client != nil {
					resp, err := client.Rescan(assetID)
					if err != nil {
						return err
					}
					if !wait {
						return printQueuedRun(cmd, resp.Run, jsonOut)
					}
					result, err := waitForRunResult(cmd.Context(), client, resp.Run.ID)
					if err != nil {
						return err
					}
					return printScanResult(cmd, result, jsonOut)
				}

				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				outcome, err := api.RescanAsset(cmd.Context(), api.RescanAssetRequest{
					Config:  cfg,
					Store:   store,
					AssetID: assetID,
					Wait:    wait,
				})
				if err != nil {
					return err
				}
				if outcome.Result != nil {
					return printScanResult(cmd, *outcome.Result, jsonOut)
				}
				if outcome.Queued == nil {
					return fmt.Errorf("rescan produced no run")
				}
				if err := printQueuedRun(cmd, *outcome.Queued, jsonOut); err != nil {
					return err
				}
				if !jsonOut {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running; the run stays pending until it starts")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the rescan finishes and print the result")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}

// waitForRunResult polls the daemon until the run settles, then fetches the
// assembled result document.
func waitForRunResult(ctx context.Context, client *ipc.Client, runID int64) (api.ScanResult, error) {
	for {
		resp, err := client.RunDescribe(runID)
		if err != nil {
			return api.ScanResult{}, err
		}
		switch catalog.Status(resp.Run.Status) {
		case catalog.StatusCompleted, catalog.StatusFailed, catalog.StatusReview:
			result, err := client.RunResult(runID)
			if err != nil {
				return api.ScanResult{}, err
			}
			return result.Result, nil
		}

		select {
		case <-ctx.Done():
			return api.ScanResult{}, ctx.Err()
		case <-time.After(scanPollInterval):
		}
	}
}

func printQueuedRun(cmd *cobra.Command, run api.Run, jsonOut bool) error {
	if jsonOut {
		return writeJSON(cmd, run)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued run %d (%s)\n", run.ID, formatStatusLabel(run.Status))
	return nil
}

func printScanResult(cmd *cobra.Command, result api.ScanResult, jsonOut bool) error {
	if jsonOut {
		return writeJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	if !result.Success {
		fmt.Fprintf(out, "Run %d %s\n", result.RunID, formatStatusLabel(result.Status))
		if result.Error != "" {
			fmt.Fprintf(out, "Error: %s\n", result.Error)
		}
		return nil
	}

	fmt.Fprintf(out, "Run %d completed with %d match(es)\n", result.RunID, len(result.Matches))
	for _, failure := range result.ProviderFailures {
		fmt.Fprintf(out, "Provider degraded: %s\n", failure)
	}
	if len(result.Matches) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(result.Matches))
	for _, match := range result.Matches {
		rows = append(rows, []string{
			fmt.Sprintf("%d", match.ID),
			fmt.Sprintf("%d", match.MatchedAssetID),
			formatScore(match.SimilarityScore),
			formatStatusLabel(match.Status),
			formatDisplayTime(match.CreatedAt),
		})
	}
	table := renderTable(
		[]string{"Match", "Matched Asset", "Score", "Status", "Created"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft},
	)
	fmt.Fprintln(out, table)
	return nil
}
