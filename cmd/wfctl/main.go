// Command wfctl is the operator CLI for the workflow engine.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nexuscrm/workflow/internal/config"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "wfctl",
		Short:        "Operator CLI for the workflow engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (default: ./config.yaml if present)")

	root.AddCommand(
		newValidateCmd(),
		newMigrateCmd(),
		newWipeCmd(),
		newSweepCmd(),
		newSeedCmd(),
		newTokenCmd(),
		newRolesCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
