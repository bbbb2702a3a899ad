package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/triagedesk/triage-service/internal/auth"
	"github.com/triagedesk/triage-service/internal/config"
)

var (
	tokenSubject string
	tokenName    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator bearer token for the admin API",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "operator id stamped on history entries (required)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "operator display name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	_ = tokenCmd.MarkFlagRequired("subject")
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.Auth.AccessTokenTTL()
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl)
	token, expiresAt, err := tokens.GenerateToken(tokenSubject, tokenName, auth.RoleAdmin)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
