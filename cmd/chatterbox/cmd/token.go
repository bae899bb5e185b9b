package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/nfrund/chatterbox/internal/auth"
	"github.com/nfrund/chatterbox/internal/config"
	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/spf13/cobra"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token signed with JWT_SECRET",
	Long: `Issue a bearer token for local testing. The token is signed with the
JWT_SECRET the server verifies with.

Example:
  JWT_SECRET=dev chatterbox token alice`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.New()
		if !cfg.AuthEnabled() {
			return errors.New("JWT_SECRET is not set")
		}
		jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
		if tokenTTL > 0 {
			jwtCfg.TokenDuration = tokenTTL
		}
		tok, err := auth.NewJWTVerifier(jwtCfg).Issue(domain.UserID(args[0]))
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default 24h)")
}
