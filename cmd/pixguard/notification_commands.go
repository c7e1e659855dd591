package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pixguard/internal/api"
	"pixguard/internal/catalog"
	"pixguard/internal/ipc"
)

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	notificationsCmd := &cobra.Command{
		Use:   "notifications",
		Short: "Review in-app notifications",
	}

	notificationsCmd.AddCommand(newNotificationsListCommand(ctx))
	notificationsCmd.AddCommand(newNotificationsReadCommand(ctx))

	return notificationsCmd
}

func newNotificationsListCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var unreadOnly bool
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var notifications []api.Notification
				if client != nil {
					resp, err := client.NotificationList(owner, unreadOnly, limit)
					if err != nil {
						return err
					}
					notifications = resp.Notifications
				} else {
					listed, err := store.ListNotifications(cmd.Context(), owner, unreadOnly, limit)
					if err != nil {
						return err
					}
					notifications = api.FromNotifications(listed)
				}

				if jsonOut {
					return writeJSON(cmd, notifications)
				}
				if len(notifications) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No notifications")
					return nil
				}
				table := renderTable(
					[]string{"ID", "", "Event", "Title", "Created"},
					buildNotificationRows(notifications),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&owner, "user", "u", "", "Only notifications for this owner")
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "Only unread notifications")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum notifications to list (0 = no limit)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	return cmd
}

func newNotificationsReadCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <notification-id> [notification-id...]",
		Short: "Mark notifications as read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "notification")
			if err != nil {
				return err
			}
			return ctx.withStore(func(client *ipc.Client, store *catalog.Store) error {
				var updated int64
				if client != nil {
					resp, err := client.NotificationsRead(ids)
					if err != nil {
						return err
					}
					updated = resp.Updated
				} else {
					count, err := store.MarkNotificationsRead(cmd.Context(), ids...)
					if err != nil {
						return err
					}
					updated = count
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %d notification(s) read\n", updated)
				return nil
			})
		},
	}
	return cmd
}
