package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"music-separator/internal/session"
	"music-separator/internal/web"
)

func newServeCmd(root *rootOptions, deps Deps) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and WebSocket API",
		Long: `Serve exposes the file list, settings, output folder and job controls
over HTTP, and streams job events to WebSocket clients at /api/ws.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := root.runtime(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				rt.HTTPAddr = addr
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := session.New(deps.NewRoutine(rt), deps.Defaults(ctx))
			if err != nil {
				return err
			}

			log.WithField("addr", rt.HTTPAddr).Info("Serving separation API")
			return web.NewServer(ctx, sess, rt).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default $MVSEP_HTTP_ADDR or 127.0.0.1:8080)")
	return cmd
}
