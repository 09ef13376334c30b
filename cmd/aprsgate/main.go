// Aprsgate is a small APRS gateway built on a pluggable TCP server engine.
//
// It serves a station map over HTTP with a live WebSocket feed, relays
// accepted reports to APRS-IS clients, and can announce itself over mDNS.
//
// Usage:
//
//	aprsgate [command] [flags]
//
// See 'aprsgate --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aprsair/aprsgate/internal/config"
	"github.com/aprsair/aprsgate/internal/logging"
	"github.com/aprsair/aprsgate/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "aprsgate",
	Short: "APRS gateway and network server",
	Long: `A standalone APRS gateway.

Serves the last position report of every station over HTTP, pushes new
reports to WebSocket clients, and relays them to APRS-IS clients on a
receive-only feed.`,
	Version:       version.Get().String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Flags and config decide the level in serve, keep the rest silent
		// unless APRSGATE_LOG_LEVEL is set.
		return logging.Initialize("")
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: user config dir)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aprsgate %s\n", version.Get())
	},
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}
