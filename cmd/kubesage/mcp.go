package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kubesage/kubesage/internal/kube"
	"github.com/kubesage/kubesage/internal/mcpserver"
)

func newMCPCmd() *cobra.Command {
	var kubeconfig string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the resource query tool over MCP stdio",
		Long: `Exposes the read-only Kubernetes query tool to MCP clients over
stdio, for use from external agent hosts instead of the built-in
conversation loop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			path, err := resolveKubeconfig(kubeconfig)
			if err != nil {
				return err
			}

			logger := newLogger()
			provider := kube.NewKubeconfigProvider(path)

			mapping, err := kube.LoadMapping()
			if err != nil {
				return fmt.Errorf("load resource mapping: %w", err)
			}
			dispatcher, err := kube.NewDispatcher(mapping, provider, kube.WithDispatcherLogger(logger))
			if err != nil {
				return fmt.Errorf("build dispatcher: %w", err)
			}

			return mcpserver.New(dispatcher, version, logger).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (defaults to $KUBECONFIG or ~/.kube/config)")

	return cmd
}
