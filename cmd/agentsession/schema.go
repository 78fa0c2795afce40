package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bazelment/yoloswe/agentsession/approval"
	"github.com/bazelment/yoloswe/agentsession/hook"
	"github.com/bazelment/yoloswe/agentsession/internal/schema"
)

// wireSchemas are the JSON documents exchanged by the hook and the gateway.
var wireSchemas = map[string]func() json.RawMessage{
	"hook-input":       schema.Generate[hook.Input],
	"hook-output":      schema.Generate[hook.Output],
	"approve-request":  schema.Generate[approval.ApproveRequest],
	"approve-response": schema.Generate[approval.ApproveResponse],
}

var schemaCmd = &cobra.Command{
	Use:   "schema [name]",
	Short: "Print the JSON Schemas of the hook and gateway messages",
	Args:  cobra.MaximumNArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return schemaNames(), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := make(map[string]json.RawMessage)
		if len(args) == 1 {
			gen, ok := wireSchemas[args[0]]
			if !ok {
				return fmt.Errorf("unknown schema %q (known: %v)", args[0], schemaNames())
			}
			out[args[0]] = gen()
		} else {
			for name, gen := range wireSchemas {
				out[name] = gen()
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func schemaNames() []string {
	names := make([]string, 0, len(wireSchemas))
	for name := range wireSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
