package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexuscrm/workflow/internal/bootstrap"
	"github.com/nexuscrm/workflow/internal/domain/models"
)

func newSeedCmd() *cobra.Command {
	var (
		file   string
		owner  string
		tenant string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create definitions from a YAML file (the bundled samples when --file is omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			data := bootstrap.SampleDefinitions()
			if file != "" {
				var err error
				if data, err = os.ReadFile(file); err != nil {
					return err
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := bootstrap.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			user := &models.UserSession{ID: owner, Name: owner, TenantID: tenant}
			created, err := bootstrap.InitializeDefinitions(cmd.Context(), app.Services, user, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d definition(s) for tenant %s\n", created, tenant)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "definitions file")
	cmd.Flags().StringVar(&owner, "owner", "admin", "user id that owns the created definitions")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
