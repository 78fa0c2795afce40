package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bazelment/yoloswe/agentsession/hook"
	"github.com/bazelment/yoloswe/agentsession/internal/logging"
)

var (
	hookGateway   string
	hookTimeout   time.Duration
	hookSafeTools []string
)

var hookCmd = &cobra.Command{
	Use:    "hook",
	Short:  "Entry points invoked by the agent CLI",
	Hidden: true,
}

var preToolUseCmd = &cobra.Command{
	Use:   "pre-tool-use",
	Short: "Decide a PreToolUse hook event through the approval gateway",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := hook.Config{
			Logger:     logging.NewJSON(os.Stderr, verbosity),
			GatewayURL: hookGateway,
			Timeout:    hookTimeout,
		}
		if cmd.Flags().Changed("safe-tools") {
			cfg.SafeTools = hookSafeTools
			if cfg.SafeTools == nil {
				cfg.SafeTools = []string{}
			}
		}
		os.Exit(hook.Run(cmd.Context(), os.Stdin, os.Stdout, cfg))
	},
}

func init() {
	rootCmd.AddCommand(hookCmd)
	hookCmd.AddCommand(preToolUseCmd)
	preToolUseCmd.Flags().StringVar(&hookGateway, "gateway", "", "Approval gateway base URL")
	preToolUseCmd.Flags().DurationVar(&hookTimeout, "timeout", hook.DefaultTimeout, "How long to wait for a decision before denying")
	preToolUseCmd.Flags().StringSliceVar(&hookSafeTools, "safe-tools", nil, "Tools allowed without asking (default: read-only tools)")
}
