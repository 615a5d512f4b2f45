package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/energizer-project/rconbridge/internal/cli"
)

var execCmd = &cobra.Command{
	Use:   "exec [--server NAME | --address HOST:PORT --password PW] COMMAND...",
	Short: "Run one command and print the response body",
	Long: `Dial the server, authenticate, execute COMMAND and print the response
body. The exit status is 1 when authentication or the exchange fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	addTargetFlags(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	command := cli.JoinArgs(args)
	if command == "" {
		return errors.New("empty command")
	}

	mgr, name, err := resolveTarget(cmd, false)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer mgr.CloseAll(context.Background())

	result, err := mgr.Execute(ctx, name, command)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, result.Response.Body)
	if !strings.HasSuffix(result.Response.Body, "\n") {
		fmt.Fprintln(out)
	}
	return nil
}
