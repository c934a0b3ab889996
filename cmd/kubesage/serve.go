package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kubesage/kubesage/internal/kube"
	"github.com/kubesage/kubesage/internal/server"
	"github.com/kubesage/kubesage/internal/validation"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kubesage HTTP service",
		Long: `Starts the HTTP service: upload a kubeconfig, then ask diagnostic
questions over /query. Conversations keep their history per session
until cleared.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			validator, err := validation.NewValidator(validation.DefaultRules())
			if err != nil {
				return err
			}

			srv := server.NewServer(a.conv, a.provider,
				server.WithLogger(a.logger),
				server.WithMetrics(a.metrics),
				server.WithValidator(validator),
				server.WithVersion(version),
				server.WithAPIKey(a.cfg.APIKey()),
				server.WithTimeouts(time.Duration(a.cfg.Server.ReadTimeout), time.Duration(a.cfg.Server.WriteTimeout)),
			)

			// Rebuild the cluster client when the kubeconfig changes
			// on disk outside of /upload.
			watcher, err := kube.NewWatcher(a.provider, a.logger)
			if err != nil {
				a.logger.Warn("kubeconfig watcher unavailable", "error", err)
			} else {
				go watcher.Run(ctx)
				defer watcher.Close()
			}

			a.sweeper.Start()

			listenAddr := a.cfg.Server.ListenAddr
			if addr != "" {
				listenAddr = addr
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe(listenAddr)
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	return cmd
}
