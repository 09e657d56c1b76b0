package cmd

import (
	"log/slog"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/server"
	"github.com/spf13/cobra"
)

var (
	flagAddr      string
	flagOrigins   []string
	flagJWTSecret string
	flagRedis     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the relay that forwards huddle signaling between participants of a room.

Environment: PORT, ENVIRONMENT, ALLOWED_ORIGINS, JWT_SECRET, REDIS_ADDR,
REDIS_PASSWORD, REDIS_DB.

Examples:
  huddle serve
  huddle serve --addr :9000 --origin https://huddle.example
  JWT_SECRET=s3cret huddle serve --redis localhost:6379`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(config.ServerOptions{
			Addr:           flagAddr,
			AllowedOrigins: flagOrigins,
			JWTSecret:      flagJWTSecret,
			RedisAddr:      flagRedis,
		})
		if err != nil {
			return err
		}
		return server.Run(cmd.Context(), cfg, slog.Default().With("component", "relay"))
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&flagAddr, "addr", "", "Listen address (default: "+config.DefaultServerAddr+")")
	f.StringSliceVar(&flagOrigins, "origin", nil, "Allowed browser origin, repeatable")
	f.StringVar(&flagJWTSecret, "jwt-secret", "", "Require tokens signed with this secret")
	f.StringVar(&flagRedis, "redis", "", "Mirror room presence to this Redis address")

	rootCmd.AddCommand(serveCmd)
}
