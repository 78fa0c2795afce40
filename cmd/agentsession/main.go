// Command agentsession runs an interactive agent session in the terminal and
// hosts the permission hook the agent calls before each tool use.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bazelment/yoloswe/agentsession/config"
)

var (
	configPath string
	verbosity  int
)

var rootCmd = &cobra.Command{
	Use:   "agentsession",
	Short: "Interactive agent sessions with reviewed file changes",
	Long: `agentsession drives the agent CLI over its streaming JSON protocol,
rebuilds the conversation as it streams, asks before the agent uses a
tool, and tracks every file the agent edits so each change can be
accepted or reverted.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: <workdir>/"+config.FileName+")")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v debug, -vv protocol trace)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config when given, otherwise the file in workDir.
func loadConfig(workDir string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load(workDir)
}
