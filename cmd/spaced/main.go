package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "spaced",
	Short:         "Real-time presence server for 2D virtual spaces",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./configs/spaces.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd, versionCmd)
}

func main() {
	// .env 可选，缺失时只使用进程环境变量
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
