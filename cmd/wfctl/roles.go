package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexuscrm/workflow/internal/bootstrap"
)

func newRolesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage role membership in the SQL role store",
	}
	cmd.AddCommand(
		newRoleChangeCmd("assign", "Give a user a role", (*bootstrap.App).AssignRole),
		newRoleChangeCmd("revoke", "Take a role away from a user", (*bootstrap.App).RevokeRole),
	)
	return cmd
}

type roleChange func(app *bootstrap.App, ctx context.Context, userID, role string) error

func newRoleChangeCmd(use, short string, change roleChange) *cobra.Command {
	var user, role string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := bootstrap.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := change(app, cmd.Context(), user, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", use, user, role)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", "", "role name")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
