package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tradewatch/tradewatch/internal/api"
	"github.com/tradewatch/tradewatch/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the TradeWatch ops server",
	Long: `Start the HTTP server that manages tenant connections, serves the
OAuth callback, and runs on-demand syncs.

Example:
  tradewatch serve --config config.yaml --db ./data/tradewatch.db`,
	RunE: runServe,
}

var serveFlags struct {
	Host string
	Port int
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp(globalFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveFlags.Host != "" {
		a.cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		a.cfg.Server.HTTPPort = serveFlags.Port
	}

	if err := a.loader.StartWatcher(); err != nil {
		a.logger.Warn().Err(err).Msg("config hot reload unavailable")
	}

	server := api.NewServer(
		a.cfg.Server, a.cfg.API,
		a.store, a.runner, a.connector,
		a.metrics, logging.Component(a.logger, "api"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx)
}
