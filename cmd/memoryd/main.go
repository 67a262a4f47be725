// Command memoryd is the tiered, persistent memory engine's server binary:
// it loads configuration, wires the engine, and speaks line-delimited
// JSON-RPC 2.0 over stdio or a Unix domain socket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is the fixed version string printed by the version subcommand.
const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "memoryd",
	Short: "Tiered, persistent memory engine for AI coding assistants",
	Long: `memoryd stores and retrieves memory for an AI coding assistant across
two tiers (core, longterm) and two scopes (global, project), exposed to
a single caller via line-delimited JSON-RPC 2.0.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the memoryd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("memoryd %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
