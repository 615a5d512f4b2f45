package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/energizer-project/rconbridge/internal/cli"
)

var consoleCmd = &cobra.Command{
	Use:   "console [--server NAME | --address HOST:PORT --password PW]",
	Short: "Open an interactive RCON console",
	Args:  cobra.NoArgs,
	RunE:  runConsole,
}

func init() {
	addTargetFlags(consoleCmd)
}

func runConsole(cmd *cobra.Command, _ []string) error {
	mgr, name, err := resolveTarget(cmd, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer mgr.CloseAll(context.Background())

	console := cli.NewConsole(mgr, cmd.InOrStdin(), cmd.OutOrStdout())
	if name != "" {
		if err := console.Use(name); err != nil {
			return err
		}
	}
	return console.Run(ctx)
}
