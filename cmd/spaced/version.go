package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tokmz/spaces"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "spaced %s (%s %s/%s)\n", spaces.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
