package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokmz/spaces/internal/server"
	"github.com/tokmz/spaces/pkg/auth"
)

var (
	tokenUsername string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a signed handshake token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, cfg, err := server.LoadSettings(cfgFile)
		if err != nil {
			return err
		}
		defer cfg.Close()
		if !settings.Auth.Enabled() {
			return fmt.Errorf("auth.secret is not configured")
		}

		tok, err := auth.NewVerifier(&settings.Auth).Sign(args[0], tokenUsername, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "", "username claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
