package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var (
		kubeconfig string
		sessionID  string
		showTools  bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a one-shot diagnostic question",
		Long: `One-shot invocation: asks a single question against the cluster and
prints the answer. History does not persist between invocations; use
the HTTP service for multi-turn conversations.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			path, err := resolveKubeconfig(kubeconfig)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, path)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if sessionID == "" {
				sessionID = "cli"
			}

			turn, err := a.conv.Ask(ctx, sessionID, question)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			if showTools {
				for _, tc := range turn.ToolCalls {
					fmt.Fprintf(os.Stderr, "[%s %v]\n", tc.ToolName, tc.Input)
				}
			}
			fmt.Println(turn.Output)
			return nil
		},
	}

	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (defaults to $KUBECONFIG or ~/.kube/config)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id")
	cmd.Flags().BoolVar(&showTools, "show-tools", false, "Print tool calls to stderr")

	return cmd
}

// resolveKubeconfig picks the kubeconfig for CLI use: explicit flag,
// then $KUBECONFIG, then ~/.kube/config.
func resolveKubeconfig(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("KUBECONFIG"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no kubeconfig: %w", err)
	}
	path := filepath.Join(home, ".kube", "config")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no kubeconfig found at %s; pass --kubeconfig", path)
	}
	return path, nil
}
