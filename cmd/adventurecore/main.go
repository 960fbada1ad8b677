// Command adventurecore runs the Adventure Orchestration Core: the event
// bus, story state, token ledger, and phase loop that drive one
// interactive-story adventure end to end, plus a `dag` subcommand for
// working with standalone DAG configs outside a full story loop run.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "adventurecore",
	Short:   "Adventure Orchestration Core",
	Long:    "adventurecore runs the event-driven control plane behind an interactive, audience-voted story adventure.",
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML settings file (defaults baked in if omitted)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dagCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
