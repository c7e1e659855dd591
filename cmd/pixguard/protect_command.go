package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"pixguard/internal/api"
	"pixguard/internal/catalog"
	"pixguard/internal/ipc"
)

func newProtectCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "protect <image>",
		Short: "Register an image as a protected asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve image path: %w", err)
			}

			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var asset api.Asset
				var created bool

				if client != nil {
					resp, err := client.Protect(path, owner)
					if err != nil {
						return err
					}
					asset = resp.Asset
					created = resp.Created
				} else {
					cfg, err := ctx.ensureConfig()
					if err != nil {
						return err
					}
					result, err := api.ProtectImage(cmd.Context(), api.ProtectImageRequest{
						Config: cfg,
						Store:  store,
						Path:   path,
						Owner:  owner,
					})
					if err != nil {
						return err
					}
					asset = api.FromAsset(result.Asset)
					created = result.Created
				}

				if jsonOut {
					return writeJSON(cmd, map[string]any{
						"asset":   asset,
						"created": created,
					})
				}
				out := cmd.OutOrStdout()
				if created {
					fmt.Fprintf(out, "Protected asset %d (%s)\n", asset.ID, asset.OriginalFilename)
				} else {
					fmt.Fprintf(out, "Asset %d already protected (%s)\n", asset.ID, asset.OriginalFilename)
				}
				if !asset.Fingerprinted {
					fmt.Fprintln(out, "Warning: asset stored without a fingerprint; rescan once models are configured")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner the asset belongs to (required)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
