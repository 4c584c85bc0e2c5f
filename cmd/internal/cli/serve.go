package cli

import (
	"os/signal"
	"syscall"

	"github.com/2impaoo-it/feedback-system/cmd/internal/app"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		addr      string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.LoadConfig()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.Serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides FEEDBACK_HTTP_ADDR)")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "json or pretty (overrides FEEDBACK_LOG_FORMAT)")
	return cmd
}
