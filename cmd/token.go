package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/BioHazard786/huddle/internal/server"
	"github.com/spf13/cobra"
)

var (
	flagSecret string
	flagTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user>",
	Short: "Mint a relay access token",
	Long: `Sign a token the relay accepts when it runs with --jwt-secret. The user id in
the token is the identity the relay announces for you.

Examples:
  huddle token --secret s3cret alice
  JWT_SECRET=s3cret huddle token --ttl 1h bob`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := flagSecret
		if secret == "" {
			secret = os.Getenv("JWT_SECRET")
		}
		token, err := server.IssueToken(secret, args[0], flagTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&flagSecret, "secret", "", "Signing secret (default: $JWT_SECRET)")
	tokenCmd.Flags().DurationVar(&flagTTL, "ttl", 24*time.Hour, "Token lifetime")

	rootCmd.AddCommand(tokenCmd)
}
