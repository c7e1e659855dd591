package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pixguard/internal/api"
	"pixguard/internal/catalog"
	"pixguard/internal/ipc"
)

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	assetsCmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect protected assets",
	}

	assetsCmd.AddCommand(newAssetsListCommand(ctx))

	return assetsCmd
}

func newAssetsListCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List protected assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var assets []api.Asset
				if client != nil {
					resp, err := client.AssetList(owner)
					if err != nil {
						return err
					}
					assets = resp.Assets
				} else {
					listed, err := store.ListSourceAssets(cmd.Context(), owner)
					if err != nil {
						return err
					}
					assets = api.FromAssets(listed)
				}

				if jsonOut {
					return writeJSON(cmd, assets)
				}
				if len(assets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No protected assets")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Owner", "Image", "SHA-256", "Fingerprinted", "Created"},
					buildAssetRows(assets),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Filter by owner")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}
