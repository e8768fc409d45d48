package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dukerupert/showtrack/internal/model"
)

func newUserCommand(ctx *commandContext) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users and API tokens",
	}
	userCmd.AddCommand(newUserAddCommand(ctx))
	userCmd.AddCommand(newUserListCommand(ctx))
	userCmd.AddCommand(newUserTokenCommand(ctx))
	return userCmd
}

func newUserAddCommand(ctx *commandContext) *cobra.Command {
	var name string
	var admin bool

	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Create a user and print an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			role := model.RoleUser
			if admin {
				role = model.RoleAdmin
			}
			u, err := a.users.Create(cmd.Context(), args[0], name, role)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			token, err := a.users.IssueToken(cmd.Context(), u.ID)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s user %d (%s)\n", u.Role, u.ID, u.Email)
			fmt.Fprintf(out, "API token: %d.%s\n", u.ID, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the admin role")
	return cmd
}

func newUserTokenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user id>",
		Short: "Issue a new API token, invalidating the previous one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
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

			token, err := a.users.IssueToken(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API token: %d.%s\n", id, token)
			return nil
		},
	}
}

func newUserListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := a.users.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, []string{strconv.FormatInt(u.ID, 10), u.Email, u.Name, string(u.Role)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Email", "Name", "Role"}, rows, []columnAlignment{alignRight}))
			return nil
		},
	}
}
