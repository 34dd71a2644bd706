package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/mindsearch/config"
	"github.com/mohammad-safakhou/mindsearch/internal/runtime"
)

func tokenCMD() *cobra.Command {
	var ttl time.Duration
	var token = &cobra.Command{
		Use:   "token [user-id]",
		Short: "Issue an API token signed with server.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret not configured; authentication is disabled")
			}
			tok, err := runtime.SignJWT(args[0], []byte(cfg.Server.JWTSecret), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return token
}
