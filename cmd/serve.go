package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lotusgift/config"
	"lotusgift/pkg/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP proxy to the trading engine",
	Long: `Start an HTTP server that forwards browser requests to the trading engine
and attaches the server-side API key, so the key never reaches the client.

Routes:
  POST /api/bridge   {"path": "order/estimate", "payload": {...}}
                     {"path": "order/status", "txHash": "0x..."}
  GET  /health
  GET  /metrics

Examples:
  lotusgift serve
  lotusgift serve --addr :8080`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :3001)")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := config.Get()
	addr := serveAddr
	if addr == "" {
		addr = cfg.ServerAddr
	}
	if cfg.EngineAPIKey == "" {
		color.Yellow("Warning: no engine API key configured; proxied calls will fail")
	}

	a := newApp(cfg)
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(a.engine, addr).Run(ctx); err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("server stopped")
		printError(err)
		os.Exit(1)
	}
}
