// Package main is the entrypoint for the bridge (binary name "bridge").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/morezero/sparkling-bridge/internal/config"
	"github.com/morezero/sparkling-bridge/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bridge: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bridge",
		Short: "Native method bridge for view containers",
		Long: `bridge hosts the native method registry and dispatch pipeline that view containers
call into. Without a command it starts the server.

Environment: BRIDGE_MANIFEST_FILE, BRIDGE_PROTOCOL_VERSION, DATABASE_URL, MIGRATION_PATH,
COMMS_URL, EVENTS_ENABLED, OTEL_ENABLED, HTTP_PORT. ENV_FILE names a dotenv file (default .env).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := newServeCmd()
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(
		serve,
		newMethodsCmd(),
		newCallCmd(),
		newRunCmd(),
		newMigrateCmd(),
		newClearCallsCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	var disabled []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge and its HTTP admin server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return server.Run(cmd.Context(), server.RunParams{Disabled: disabled})
		},
	}
	cmd.Flags().StringSliceVar(&disabled, "disable", nil, "methods that answer CALL_INTERCEPTED (repeatable, comma separated)")
	return cmd
}

// loadConfig loads and validates the bridge configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStack builds a Stack for a one-shot command. Database and events are opened when configured so
// calls made from the CLI are audited like served ones.
func openStack(ctx context.Context, cfg *config.Config) (*server.Stack, error) {
	return server.NewStack(ctx, cfg, server.StackOptions{Database: true, Events: true})
}
