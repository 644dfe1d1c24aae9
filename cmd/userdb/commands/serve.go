package commands

import (
	"github.com/spf13/cobra"

	"github.com/userdb/userdb/internal/config"
	"github.com/userdb/userdb/internal/server"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the users HTTP API",
		Long: `Serve the users HTTP API until SIGINT or SIGTERM.

Endpoints:
  GET    /health
  GET    /metrics
  POST   /v1/users
  GET    /v1/users
  GET    /v1/users/search?q=
  PUT    /v1/users/:id
  DELETE /v1/users/:identifier`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			as := &server.AppState{
				UserService:    a.service,
				Logger:         a.logger,
				MaxRequestSize: config.Http().MaxRequestSize,
			}
			if a.metrics.Enabled() {
				as.MetricsHandler = a.metrics.Handler()
				as.MetricsPath = config.Metrics().Path
			}

			return server.Run(as, config.Http().Addr())
		},
	}
}
