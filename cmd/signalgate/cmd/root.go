// Package cmd provides the CLI commands for SignalGate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalgate/signalgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "signalgate",
	Short: "SignalGate - application monitoring MCP server",
	Long: `SignalGate is an MCP server exposing application monitoring data:
monitored services, their metrics, SLOs, and alarms.

It speaks the MCP streamable HTTP transport (SSE stream + JSON-RPC POST),
so any MCP client can connect over the network.

Quick start:
  1. Run with demo data: signalgate serve --dev
  2. Point an MCP client at http://127.0.0.1:8080/mcp

Configuration:
  Config is loaded from signalgate.yaml in the current directory,
  $HOME/.signalgate/, or /etc/signalgate/.

  Environment variables can override config values with the SIGNALGATE_ prefix.
  Example: SIGNALGATE_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the MCP server
  hash-key    Hash an API key for use in auth.api_keys
  config      Print the effective configuration
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./signalgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
