package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/waypoint/internal/errors"
	"github.com/vango-dev/waypoint/pkg/inspect"
	"github.com/vango-dev/waypoint/pkg/navigation"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		port     int
		host     string
		readOnly bool
		initial  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the router for inspection",
		Long: `Serve the router over HTTP.

Routes:
  GET  /routes, /match?href=, /state, /cache, /metrics
  POST /navigate, /preload, /invalidate, /history/{back,forward}
  GET  /ws   state snapshots over WebSocket

Examples:
  waypoint serve
  waypoint serve --port=8080 --read-only
  waypoint serve --initial=/dashboard`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close()

			if port > 0 {
				a.cfg.Server.Port = port
			}
			if host != "" {
				a.cfg.Server.Host = host
			}

			if err := a.router.Load(ctx); err != nil {
				a.logger.Warn("initial load failed", "error", err)
			}
			if initial != "" {
				if err := a.router.Navigate(ctx, navigation.NavigateOptions{Href: initial}); err != nil {
					return errors.Classify(err, errors.CodeLoaderFailed)
				}
			}

			janitorCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			if interval := a.cfg.Cache.SweepInterval.Std(); interval > 0 {
				go a.router.Cache().Run(janitorCtx, interval)
			}

			opts := []inspect.Option{
				inspect.WithLogger(a.logger),
				inspect.WithReadOnly(readOnly),
				inspect.WithShutdownTimeout(a.cfg.Server.ShutdownTimeout.Std()),
			}
			if a.registry != nil {
				opts = append(opts, inspect.WithGatherer(a.registry))
			}
			srv := inspect.New(a.router, opts...)

			printBanner()
			success("Serving %s (%d routes)", a.manifest.Source, a.router.Tree().Len())
			info("http://%s", a.cfg.Addr())
			if a.registry == nil {
				warn("metrics disabled; set metrics.enabled to expose /metrics")
			}
			fmt.Println()

			if err := srv.ListenAndServe(ctx, a.cfg.Addr()); err != nil {
				return errors.New(errors.CodeServeFailed).Wrap(err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from config)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Reject navigate, preload, invalidate and history requests")
	cmd.Flags().StringVar(&initial, "initial", "", "Href to navigate to before serving")

	return cmd
}
