package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/dispatcher"
	"github.com/morezero/sparkling-bridge/pkg/jsengine"
)

type callFlags struct {
	namespace   string
	container   string
	platform    string
	thread      string
	protocol    string
	cancel      string
	failOnError bool
}

func newCallCmd() *cobra.Command {
	var f callFlags
	cmd := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Dispatch one call and print the result",
		Long: `Dispatches one call through the full pipeline (authority, gates, marshaling, thread
routing, observers) and prints the response.

Examples:
  bridge call echo '{"msg":"hi"}'
  bridge call bridge.info --protocol '^1.0.0'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data json.RawMessage
			if len(args) == 2 {
				data = json.RawMessage(args[1])
				if !json.Valid(data) {
					return fmt.Errorf("params are not valid JSON")
				}
			}
			req := &dispatcher.BridgeRequest{
				MethodName:      args[0],
				Namespace:       f.namespace,
				Data:            data,
				ContainerID:     f.container,
				ProtocolVersion: f.protocol,
				Platform:        f.platform,
				Thread:          f.thread,
				CancelPolicy:    f.cancel,
			}
			resp, err := runCall(cmd.Context(), req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if f.failOnError && !resp.Result.OK() {
				return fmt.Errorf("%s answered %s", args[0], resp.Result.Code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.namespace, "namespace", "", "call namespace (default \"default\")")
	cmd.Flags().StringVar(&f.container, "container", "cli", "container id")
	cmd.Flags().StringVar(&f.platform, "platform", "other", "platform tag: lynx, webview or other")
	cmd.Flags().StringVar(&f.thread, "thread", "", "thread preference: main, background or current")
	cmd.Flags().StringVar(&f.protocol, "protocol", "", "protocol version range the caller accepts")
	cmd.Flags().StringVar(&f.cancel, "cancel-policy", "", "callback policy on teardown")
	cmd.Flags().BoolVar(&f.failOnError, "fail", false, "exit non-zero unless the call succeeds")
	return cmd
}

func runCall(ctx context.Context, req *dispatcher.BridgeRequest) (*dispatcher.BridgeResponse, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	stack, err := openStack(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer stack.Close(context.Background())

	ctx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()

	ch := make(chan *dispatcher.BridgeResponse, 1)
	stack.Dispatcher.HandleRequest(ctx, req, func(resp *dispatcher.BridgeResponse) { ch <- resp })
	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w", req.MethodName, ctx.Err())
	}
}

func newRunCmd() *cobra.Command {
	var (
		timeout   time.Duration
		container string
		platform  string
	)
	cmd := &cobra.Command{
		Use:   "run <script.js>",
		Short: "Run a script in a JS container wired to the bridge",
		Long: `Runs a script in a fresh JS container. The script reaches native methods through
bridge.call(method, params, callback, options) and can register container-local methods with
bridge.register(name, handler, spec). The container is closed when the script and its pending
callbacks finish, or when --timeout expires.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stack, err := openStack(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer stack.Close(context.Background())

			out := cmd.OutOrStdout()
			engine, err := jsengine.New(jsengine.Params{
				Registry:    stack.Registry,
				Hooks:       stack.Hooks,
				Protocol:    stack.Protocol,
				Debug:       cfg.Debug,
				ContainerID: container,
				Platform:    call.ParsePlatform(platform),
				Background:  stack.Background,
				Console: func(level, line string) {
					if level == "log" || level == "info" {
						fmt.Fprintln(out, line)
						return
					}
					fmt.Fprintf(out, "[%s] %s\n", strings.ToUpper(level), line)
				},
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			_, runErr := engine.Run(ctx, string(src))
			closeErr := engine.Close(ctx)
			if runErr != nil {
				return fmt.Errorf("run %s: %w", args[0], runErr)
			}
			if closeErr != nil {
				st := engine.Stats()
				return fmt.Errorf("%d callbacks still pending at exit: %w", st.Orphaned, closeErr)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "limit for the script and its callbacks")
	cmd.Flags().StringVar(&container, "container", "", "container id (default random)")
	cmd.Flags().StringVar(&platform, "platform", "other", "platform tag: lynx, webview or other")
	return cmd
}
