package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/server"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/slogger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trigger server",
	Long: `Run the HTTP trigger server. POST /trigger accepts lifecycle actions
(start, stop, start_and_process), GET /healthz reports liveness, and
GET /metrics exposes Prometheus metrics.

Idle-shutdown loops spawned by start triggers live inside this process; on
shutdown they are cancelled and the instance is left in whatever state the
last trigger put it.`,
	Example: `  divinepic serve
  curl -XPOST localhost:8080/trigger -d '{"action": "start"}'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := requireController(cmd.Context())
		if err != nil {
			return err
		}
		cfg, err := requireConfig(cmd.Context())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(ctrl, server.Config{Addr: cfg.Server.Listen})
		if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ctrl.Shutdown(drainCtx); err != nil {
			slogger.L(ctx).Warn("idle loops did not drain cleanly", "error", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
