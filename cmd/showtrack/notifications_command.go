package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	var userID int64
	var unread bool
	var limit int

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List a user's notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.notifications.List(cmd.Context(), userID, unread, limit)
			if err != nil {
				return fmt.Errorf("list notifications: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No notifications")
				return nil
			}

			rows := make([][]string, 0, len(items))
			for _, n := range items {
				read := ""
				if n.IsRead {
					read = "yes"
				}
				rows = append(rows, []string{
					strconv.FormatInt(n.ID, 10),
					n.CreatedAt.Local().Format("2006-01-02 15:04"),
					string(n.Kind),
					n.Title,
					read,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Created", "Kind", "Title", "Read"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "User id")
	cmd.Flags().BoolVar(&unread, "unread", false, "Only unread notifications")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	return cmd
}
