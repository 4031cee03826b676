package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tokmz/spaces/internal/server"
)

var seedFile string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create directory and chat tables, optionally loading a seed file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		settings, cfg, err := server.LoadSettings(cfgFile)
		if err != nil {
			return err
		}
		defer cfg.Close()
		if seedFile != "" {
			settings.Directory.Seed = seedFile
		}

		res, err := server.Migrate(cmd.Context(), settings)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %d tables, seeded %d users and %d spaces\n",
			res.Tables, res.Users, res.Spaces)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&seedFile, "seed", "", "seed file with users and spaces")
}
