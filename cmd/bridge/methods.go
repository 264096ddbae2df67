package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/morezero/sparkling-bridge/internal/server"
	"github.com/morezero/sparkling-bridge/pkg/registry"
)

func newMethodsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "List the methods registered from the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stack, err := server.NewStack(cmd.Context(), cfg, server.StackOptions{})
			if err != nil {
				return err
			}
			defer stack.Close(context.Background())

			infos := stack.Registry.Describe(registry.Global())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			return printMethods(cmd.OutOrStdout(), stack.Protocol.Current(), infos)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printMethods(w io.Writer, protocol string, infos []registry.MethodInfo) error {
	fmt.Fprintf(w, "Protocol %s, %d methods\n\n", protocol, len(infos))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tTHREAD\tSHAPE\tREQUIRED\tDESCRIPTION")
	for _, mi := range infos {
		name := mi.Name
		if mi.Lazy {
			name += " (lazy)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, mi.Thread, mi.Shape, strings.Join(mi.RequiredKeys, ","), mi.Description)
	}
	return tw.Flush()
}
