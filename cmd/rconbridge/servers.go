package main

import (
	"github.com/spf13/cobra"

	"github.com/energizer-project/rconbridge/internal/cli"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List configured servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd, true)
		if err != nil {
			return err
		}
		cli.PrintTargets(cmd.OutOrStdout(), cfg.GetRCONData().Servers)
		return nil
	},
}
