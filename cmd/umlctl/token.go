package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/umlstudio/engine/internal/api/middleware"
)

var tokenTTL time.Duration

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a bearer token with JWT_SECRET for --user and --name",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set")
		}
		if userID == "" {
			return errors.New("--user is required")
		}
		tok, err := middleware.SignToken([]byte(appConfig.JWTSecret), identity(), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}
