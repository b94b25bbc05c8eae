package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"CourseStore/internal/auth"
	"CourseStore/internal/config"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the write API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is not configured")
		}
		if tokenRole != auth.RoleAdmin && tokenRole != auth.RoleEditor {
			return fmt.Errorf("unknown role %q", tokenRole)
		}

		tok, err := auth.NewTokenMaker(cfg.JWTSecret).New(tokenSubject, tokenRole, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleEditor, "role: editor or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
