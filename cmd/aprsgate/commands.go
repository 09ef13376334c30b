package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aprsair/aprsgate/internal/config"
	"github.com/aprsair/aprsgate/internal/discovery"
	"github.com/aprsair/aprsgate/internal/ui"
)

// Discovery flags
var (
	scanTimeout int
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find aprsgate instances on the local network",
	Long: `Browse mDNS for gateways started with 'serve --announce' and list
them with their HTTP address and APRS-IS port.`,
	Example: `  # Browse for 5 seconds (default)
  aprsgate discover

  # Longer scan for busy networks
  aprsgate discover --timeout 15`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := discovery.NewScanner()
		scanner.Timeout = time.Duration(scanTimeout) * time.Second

		fmt.Printf("Scanning for %s (timeout: %ds)...\n\n", discovery.ServiceType, scanTimeout)
		gateways, err := scanner.Scan(cmd.Context())
		if err != nil {
			fmt.Println(ui.NewFailureResult("Discovery failed", err,
				"Multicast must be enabled on the network interface",
				"The firewall must allow mDNS (UDP port 5353)",
			))
			return err
		}
		fmt.Println(ui.RenderGateways(gateways))
		return nil
	},
}

func init() {
	discoverCmd.Flags().IntVar(&scanTimeout, "timeout", int(discovery.DefaultScanTimeout/time.Second), "Scan timeout in seconds")
}

var monitorCmd = &cobra.Command{
	Use:   "monitor <url|host:port|instance>",
	Short: "Watch a gateway's live feed",
	Long: `Connect to a gateway's WebSocket feed and show every message in a
scrolling view. Text typed into the input line is sent to the gateway.

The target is a ws:// URL, a host:port pair, or an mDNS instance name.`,
	Example: `  aprsgate monitor ws://192.168.4.16:8080/ws
  aprsgate monitor localhost:8080
  aprsgate monitor APRSAIR`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := monitorURL(cmd, args[0])
		if err != nil {
			return err
		}
		return ui.RunMonitor(cmd.Context(), url)
	},
}

func monitorURL(cmd *cobra.Command, target string) (string, error) {
	if strings.HasPrefix(target, "ws://") || strings.HasPrefix(target, "wss://") {
		return target, nil
	}
	if _, _, err := net.SplitHostPort(target); err == nil {
		return "ws://" + target + "/ws", nil
	}

	fmt.Printf("Looking up %s over mDNS...\n", target)
	g, err := discovery.NewScanner().WaitFor(cmd.Context(), target)
	if err != nil {
		return "", err
	}
	return g.WebSocketURL(), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			if !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Overwrite configuration?",
				path+" already exists",
				"Every setting will be reset to its default",
			) {
				return nil
			}
		}

		if err := config.Default().Save(path); err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), ui.NewFailureResult("Could not write configuration", err))
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.NewSuccessResult("Configuration written",
			ui.Detail{Key: "Path", Value: path},
			ui.Detail{Key: "Next", Value: "aprsgate serve"},
		))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		f, err := config.Load(path)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(f)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, data)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite without asking")
	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd)
}
