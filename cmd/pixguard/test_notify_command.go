package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pixguard/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test push notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("missing notification response")
				}
				out := cmd.OutOrStdout()
				if resp.Message != "" {
					fmt.Fprintln(out, resp.Message)
					return nil
				}
				if resp.Sent {
					fmt.Fprintln(out, "Test notification sent")
				} else {
					fmt.Fprintln(out, "Notification not sent")
				}
				return nil
			})
		},
	}
}
