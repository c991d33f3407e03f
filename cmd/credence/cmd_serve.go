package main

import (
	"context"
	"os/signal"
	"syscall"

	"credence/internal/logging"

	"github.com/spf13/cobra"
)

// serveCmd runs the HTTP front end
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat and file-listing HTTP API",
	Long: `Starts the HTTP API:

  POST /v1/groups/{groupID}/chat    {"message": "..."}
  GET  /v1/groups/{groupID}/files
  GET  /healthz
  GET  /metrics

Callers are identified by the X-User-ID, X-User-Email and X-User-Name
headers set by the fronting proxy.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logging.Boot("serving on %s", cfg.Server.Addr)
	return a.server(cfg).ListenAndServe(ctx)
}
