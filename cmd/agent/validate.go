package main

import (
	"fmt"

	"github.com/bilal/g55-agent/internal/communicator"
	"github.com/bilal/g55-agent/internal/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Load and check a configuration file without contacting the ONU or the
broker, then list the discovery topics the agent would announce.

Exit codes:
  0 - config is valid
  1 - config is invalid`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	topics := communicator.Topics{Prefix: cfg.MQTT.DiscoveryPrefix}
	sensors := communicator.Sensors(cfg.ONU.Ping)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  ONU:        %s\n", cfg.ONU.IP)
	fmt.Fprintf(out, "  Broker:     %s (auth %t)\n", cfg.BrokerURL(), cfg.BrokerAuth())
	fmt.Fprintf(out, "  Interval:   %s\n", cfg.Interval())
	fmt.Fprintf(out, "  Kafka:      %t\n", len(cfg.Kafka.Brokers) > 0)
	fmt.Fprintf(out, "  Sensors:    %d\n", len(sensors))
	for _, s := range sensors {
		fmt.Fprintf(out, "    %s\n", topics.Config(s.Key))
	}
	return nil
}
