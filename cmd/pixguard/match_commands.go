package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pixguard/internal/api"
	"pixguard/internal/catalog"
	"pixguard/internal/ipc"
	"pixguard/internal/review"
)

func newMatchesCommand(ctx *commandContext) *cobra.Command {
	matchesCmd := &cobra.Command{
		Use:   "matches",
		Short: "Inspect and review similarity matches",
	}

	matchesCmd.AddCommand(newMatchesListCommand(ctx))
	matchesCmd.AddCommand(newMatchesShowCommand(ctx))
	matchesCmd.AddCommand(newMatchesReviewCommand(ctx, review.ActionConfirm))
	matchesCmd.AddCommand(newMatchesReviewCommand(ctx, review.ActionDecline))

	return matchesCmd
}

func newMatchesListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var matches []api.Match
				if client != nil {
					resp, err := client.MatchList(listStatuses)
					if err != nil {
						return err
					}
					matches = resp.Matches
				} else {
					var statuses []catalog.MatchStatus
					for _, raw := range listStatuses {
						if parsed, ok := catalog.ParseMatchStatus(raw); ok {
							statuses = append(statuses, parsed)
						}
					}
					listed, err := store.ListMatches(cmd.Context(), statuses...)
					if err != nil {
						return err
					}
					matches = api.FromMatches(listed)
				}

				if jsonOut {
					return writeJSON(cmd, matches)
				}
				if len(matches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No matches recorded")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Asset", "Score", "Basis", "Status", "Origin", "Created"},
					buildMatchRows(matches),
					[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by match status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}

func newMatchesShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <match-id>",
		Short: "Show one match in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "match")
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var match api.Match
				if client != nil {
					resp, err := client.MatchDescribe(id)
					if err != nil {
						return err
					}
					match = resp.Match
				} else {
					record, err := store.GetMatch(cmd.Context(), id)
					if err != nil {
						return err
					}
					if record == nil {
						return fmt.Errorf("match %d not found", id)
					}
					match = api.FromMatch(record)
				}

				if jsonOut {
					return writeJSON(cmd, match)
				}
				printMatchDetail(cmd, match)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}

func printMatchDetail(cmd *cobra.Command, match api.Match) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	kind := statusInfo
	switch catalog.MatchStatus(match.Status) {
	case catalog.MatchConfirmed:
		kind = statusOK
	case catalog.MatchDeclined:
		kind = statusWarn
	}

	fmt.Fprintln(out, renderStatusLine("Match", kind, fmt.Sprintf("%d (%s)", match.ID, formatStatusLabel(match.Status)), colorize))
	fmt.Fprintln(out, renderStatusLine("Source Asset", statusInfo, fmt.Sprintf("%d", match.SourceAssetID), colorize))
	fmt.Fprintln(out, renderStatusLine("Matched Asset", statusInfo, fmt.Sprintf("%d", match.MatchedAssetID), colorize))
	fmt.Fprintln(out, renderStatusLine("Score", statusInfo, formatScore(match.SimilarityScore), colorize))
	if match.Basis != "" {
		fmt.Fprintln(out, renderStatusLine("Basis", statusInfo, match.Basis, colorize))
	}
	if match.Title != "" {
		fmt.Fprintln(out, renderStatusLine("Title", statusInfo, match.Title, colorize))
	}
	if match.PageURL != "" {
		fmt.Fprintln(out, renderStatusLine("Page", statusInfo, match.PageURL, colorize))
	}
	if match.TargetURL != "" {
		fmt.Fprintln(out, renderStatusLine("Image URL", statusInfo, match.TargetURL, colorize))
	}
	if match.Provider != "" {
		fmt.Fprintln(out, renderStatusLine("Provider", statusInfo, match.Provider, colorize))
	}
	if match.InternalAssetID > 0 {
		fmt.Fprintln(out, renderStatusLine("Corpus Asset", statusInfo, fmt.Sprintf("%d", match.InternalAssetID), colorize))
	}
	if match.ReviewedBy != "" {
		detail := match.ReviewedBy
		if match.ReviewedAt != "" {
			detail += " at " + formatDisplayTime(match.ReviewedAt)
		}
		fmt.Fprintln(out, renderStatusLine("Reviewed", statusInfo, detail, colorize))
	}
	if match.CreatedAt != "" {
		fmt.Fprintln(out, renderStatusLine("Created", statusInfo, formatDisplayTime(match.CreatedAt), colorize))
	}
}

// newMatchesReviewCommand builds the confirm or decline subcommand; both run
// the same review transition with a different action.
func newMatchesReviewCommand(ctx *commandContext, action review.Action) *cobra.Command {
	var reviewedBy string
	var jsonOut bool

	use := string(action)
	cmd := &cobra.Command{
		Use:   use + " <match-id>",
		Short: formatStatusLabel(use) + " a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "match")
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var result api.ReviewResult
				if client != nil {
					resp, err := client.MatchReview(id, string(action), reviewedBy)
					if err != nil {
						return err
					}
					result = resp.Result
				} else {
					cfg, err := ctx.ensureConfig()
					if err != nil {
						return err
					}
					reviewed, err := api.ReviewMatch(cmd.Context(), api.ReviewMatchRequest{
						Config:     cfg,
						Store:      store,
						MatchID:    id,
						Action:     string(action),
						ReviewedBy: reviewedBy,
					})
					if err != nil {
						return err
					}
					result = reviewed
				}

				if jsonOut {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if result.Transitioned {
					fmt.Fprintf(out, "Match %d %s\n", result.MatchID, formatStatusLabel(result.Status))
				} else {
					fmt.Fprintf(out, "Match %d already %s\n", result.MatchID, formatStatusLabel(result.Status))
				}
				if result.DossierID > 0 {
					fmt.Fprintf(out, "Dossier %d queued for delivery\n", result.DossierID)
				}
				if result.DossierError != "" {
					fmt.Fprintf(out, "Dossier preparation failed: %s\n", result.DossierError)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reviewedBy, "by", "", "Reviewer name recorded with the decision")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}
