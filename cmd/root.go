package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/jungjaehoon-lifegamez/mama-sub/cmd.Version=v1.0.0"
var Version = "dev"

var (
	workspaceDir string
	streamCmd    string
	mcpCmd       string
	channelKey   string
	maxTurns     int
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "mama-sub",
	Short: "mama-sub — agent loop orchestrator",
	Long:  "mama-sub drives a persistent LLM CLI subprocess through a multi-turn, tool-using agent loop, one lane per channel, with session memory, prompt composition, and cross-cutting hooks.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "workspace", ".", "workspace root for file tools, sessions, and memory")
	rootCmd.PersistentFlags().StringVar(&streamCmd, "stream-json-cmd", "claude --output-format stream-json --input-format stream-json", "command line that starts the stream-json subprocess")
	rootCmd.PersistentFlags().StringVar(&mcpCmd, "mcp-cmd", "", "command line for an MCP JSON-RPC subprocess (accepted but not used by run or serve)")
	rootCmd.PersistentFlags().StringVar(&channelKey, "channel", "cli:local", "channel key this process serves (cron:* routes to the cron lane)")
	rootCmd.PersistentFlags().IntVar(&maxTurns, "max-turns", 0, "override the agent loop's max turns (0 = default)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mama-sub %s\n", Version)
		},
	}
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
