// serve.go implements "secureqr serve", which runs the HTTP API until
// SIGINT or SIGTERM.

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/secureqr/internal/config"
	"github.com/shinji-kodama/secureqr/internal/model"
	"github.com/shinji-kodama/secureqr/internal/port"
	"github.com/shinji-kodama/secureqr/internal/server"
)

// serveFlags holds the flag values for the serve command. Zero values
// mean "not set"; the configuration decides.
type serveFlags struct {
	host string
	port int
}

// NewServeCommand creates the "serve" command.
func NewServeCommand() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the secure QR HTTP API.

Endpoints:
  POST /upload    multipart form with the image in field "qr_image"
  POST /decode    JSON {"data": "<QR text>"}
  GET  /healthz   liveness probe
  GET  /metrics   Prometheus metrics

The listen port comes from --port, then PORT, then the config file, and
defaults to 5000. The command fails with exit code 4 if the port is taken.

Examples:
  secureqr serve
  PORT=8080 secureqr serve
  secureqr serve --config secureqr.yaml --port 9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", "", "Bind address (default from config, 0.0.0.0)")
	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "Listen port (default from PORT or config, 5000)")

	return cmd
}

// runServe loads the configuration, checks the port and serves until a
// termination signal arrives.
func runServe(ctx context.Context, cmd *cobra.Command, flags *serveFlags) error {
	cfg, err := loadConfig(func(c *config.Config) {
		if cmd.Flags().Changed("host") {
			c.Server.Host = flags.host
		}
		if cmd.Flags().Changed("port") {
			c.Server.Port = flags.port
		}
	})
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	decoder, err := newDecoder(cfg.Decoder)
	if err != nil {
		return err
	}

	// Fail fast with a clear exit code rather than a bind error from
	// deep inside net/http.
	if !port.NewScanner(cfg.Server.Host).IsPortAvailable(cfg.Server.Port) {
		return model.NewCLIError(model.ExitPortAllocationFailed,
			fmt.Sprintf("port %d is already in use on %s", cfg.Server.Port, cfg.Server.Host))
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	VerboseLog("Listening on %s", cfg.Server.Addr())
	srv := server.New(cfg, logger, decoder)
	if err := srv.ListenAndServe(ctx); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "server failed", err)
	}
	return nil
}
