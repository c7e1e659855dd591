package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pixguard/internal/api"
	"pixguard/internal/catalog"
	"pixguard/internal/ipc"
)

func newDossiersCommand(ctx *commandContext) *cobra.Command {
	dossiersCmd := &cobra.Command{
		Use:   "dossiers",
		Short: "Inspect and deliver takedown dossiers",
	}

	dossiersCmd.AddCommand(newDossiersListCommand(ctx))
	dossiersCmd.AddCommand(newDossiersShowCommand(ctx))
	dossiersCmd.AddCommand(newDossiersDeliverCommand(ctx))

	return dossiersCmd
}

func newDossiersListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dossiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var dossiers []api.Dossier
				if client != nil {
					resp, err := client.DossierList(listStatuses)
					if err != nil {
						return err
					}
					dossiers = resp.Dossiers
				} else {
					var statuses []catalog.DeliveryStatus
					for _, raw := range listStatuses {
						if parsed, ok := catalog.ParseDeliveryStatus(raw); ok {
							statuses = append(statuses, parsed)
						}
					}
					listed, err := store.ListDossiers(cmd.Context(), statuses...)
					if err != nil {
						return err
					}
					dossiers = api.FromDossiers(listed)
				}

				if jsonOut {
					return writeJSON(cmd, dossiers)
				}
				if len(dossiers) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No dossiers recorded")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Match", "Status", "Attempts", "Sent To", "Updated"},
					buildDossierRows(dossiers),
					[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by delivery status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}

func newDossiersShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var showBody bool

	cmd := &cobra.Command{
		Use:   "show <dossier-id>",
		Short: "Show one dossier and its delivery history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "dossier")
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var dossier api.Dossier
				var attempts []api.DeliveryAttempt
				if client != nil {
					resp, err := client.DossierDescribe(id)
					if err != nil {
						return err
					}
					dossier = resp.Dossier
					attempts = resp.Attempts
				} else {
					record, err := store.GetDossier(cmd.Context(), id)
					if err != nil {
						return err
					}
					if record == nil {
						return fmt.Errorf("dossier %d not found", id)
					}
					dossier = api.FromDossier(record)
					history, err := store.DeliveryAttemptsForDossier(cmd.Context(), id)
					if err != nil {
						return err
					}
					attempts = api.FromDeliveryAttempts(history)
				}

				if jsonOut {
					return writeJSON(cmd, map[string]any{
						"dossier":  dossier,
						"attempts": attempts,
					})
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				kind := statusInfo
				switch catalog.DeliveryStatus(dossier.Status) {
				case catalog.DeliveryDelivered:
					kind = statusOK
				case catalog.DeliveryFailed:
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine("Dossier", kind, fmt.Sprintf("%d (%s)", dossier.ID, formatStatusLabel(dossier.Status)), colorize))
				fmt.Fprintln(out, renderStatusLine("Match", statusInfo, fmt.Sprintf("%d", dossier.MatchID), colorize))
				if dossier.Subject != "" {
					fmt.Fprintln(out, renderStatusLine("Subject", statusInfo, dossier.Subject, colorize))
				}
				fmt.Fprintln(out, renderStatusLine("Attempts", statusInfo, fmt.Sprintf("%d", dossier.Attempts), colorize))
				if dossier.SentTo != "" {
					detail := dossier.SentTo
					if dossier.SentAt != "" {
						detail += " at " + formatDisplayTime(dossier.SentAt)
					}
					fmt.Fprintln(out, renderStatusLine("Delivered", statusOK, detail, colorize))
				}
				if dossier.LastError != "" {
					fmt.Fprintln(out, renderStatusLine("Last Error", statusError, dossier.LastError, colorize))
				}

				if len(attempts) > 0 {
					fmt.Fprintln(out)
					table := renderTable(
						[]string{"Attempt", "Outcome", "Error", "When"},
						buildAttemptRows(attempts),
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
					)
					fmt.Fprintln(out, table)
				}

				if showBody && dossier.BodyText != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, dossier.BodyText)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	cmd.Flags().BoolVar(&showBody, "body", false, "Print the dossier body text")
	return cmd
}

func newDossiersDeliverCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "deliver <dossier-id>",
		Short: "Deliver one dossier immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "dossier")
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var dossier api.Dossier
				if client != nil {
					resp, err := client.DossierDeliver(id)
					if err != nil {
						return err
					}
					dossier = resp.Dossier
				} else {
					cfg, err := ctx.ensureConfig()
					if err != nil {
						return err
					}
					delivered, err := api.DeliverDossier(cmd.Context(), api.DeliverDossierRequest{
						Config:    cfg,
						Store:     store,
						DossierID: id,
					})
					if err != nil {
						return err
					}
					dossier = delivered
				}

				if jsonOut {
					return writeJSON(cmd, dossier)
				}
				out := cmd.OutOrStdout()
				if catalog.DeliveryStatus(dossier.Status) == catalog.DeliveryDelivered {
					fmt.Fprintf(out, "Dossier %d delivered to %s\n", dossier.ID, dossier.SentTo)
				} else {
					fmt.Fprintf(out, "Dossier %d is %s\n", dossier.ID, formatStatusLabel(dossier.Status))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}
