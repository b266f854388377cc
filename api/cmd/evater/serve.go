package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"evater/api/internal/handle"
	"evater/api/internal/httpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		go a.purgeLoop(ctx, cfg.TestRetention, logger)

		return httpserver.Start(ctx, ":"+cfg.Port, httpserver.NewRouter(newHandle(a), logger), logger)
	},
}

func newHandle(a *app) *handle.Handle {
	h := handle.New(a.svc, a.images, cfg.RequestTimeout, logger.Named("http"))
	if a.db != nil {
		h.WithPing(func(ctx context.Context) error { return a.db.PingContext(ctx) })
	}
	return h
}
