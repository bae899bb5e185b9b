package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatterbox",
	Short: "Real-time chat server",
	Long: `Chatterbox serves room and direct chat over WebSocket, with REST endpoints
for history, rooms and presence.

Available commands:
  serve     Run the chat server
  topics    Explore the event-bus topics
  token     Issue a development bearer token
  version   Print the version

Use "chatterbox [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
