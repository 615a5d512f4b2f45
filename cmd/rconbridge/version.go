package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/energizer-project/rconbridge/internal/util"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s %s/%s)\n",
			util.AppName, util.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
