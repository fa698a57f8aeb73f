// Package main is the g55 agent binary.
//
// Usage:
//
//	agent run -c configuration.yaml       # poll the ONU and publish to MQTT
//	agent validate -c configuration.yaml  # check configuration, list topics
//	agent version
//
// Running the binary without a subcommand is the same as "run".
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set via -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

const defaultConfigFile = "configuration.yaml"

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Publish GPON ONU telemetry to MQTT",
	Long: `agent logs into the ONU web interface, scrapes the PON link status and
alarm pages on a fixed interval and publishes each value to MQTT with
Home Assistant discovery.`,
	SilenceUsage: true,
	RunE:         runAgent,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "agent %s (commit %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigFile, "path to config file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
