package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/nexuscrm/workflow/internal/bootstrap"
	"github.com/nexuscrm/workflow/internal/infrastructure/database"
)

func openDatabase(cmd *cobra.Command) (*database.Connection, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return database.Open(cmd.Context(), cfg.Database())
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the engine tables in the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer conn.Close()
			return bootstrap.InitializeSchema(cmd.Context(), conn)
		},
	}
}

func newWipeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Drop every engine table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				log.Println("⚠️ Refusing to drop tables without --yes")
				return nil
			}
			conn, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := bootstrap.WipeSchema(cmd.Context(), conn); err != nil {
				return err
			}
			log.Println("✅ Database wipe complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping all engine tables")
	return cmd
}
