package main

import (
	"github.com/spf13/cobra"

	"github.com/energizer-project/rconbridge/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create or extend the configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd, true)
		if err != nil {
			return err
		}
		return config.RunSetupWizard(cfg, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}
