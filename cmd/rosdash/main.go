package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TheAlpha16/rosweb-go"
	"github.com/TheAlpha16/rosweb-go/internal/config"
)

var (
	configPath string
	bridgeURL  string
)

var rootCmd = &cobra.Command{
	Use:   "rosdash",
	Short: "Headless robot dashboard over the HTTP bridge",
	Long: `rosdash polls a rosweb bridge the way a browser dashboard does:
one request in flight per subscription, the next issued when the last completes.`,
	SilenceUsage: true,
}

// openBridge builds a bridge client from the config file and flags.
func openBridge(cmd *cobra.Command) (rosweb.Bridge, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("bridge") {
		cfg.Client.BridgeURL = bridgeURL
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := cfg.Logger()
	if err != nil {
		return nil, nil, err
	}

	bridge, err := rosweb.NewHTTPBridge(cfg.Client.BridgeURL,
		rosweb.WithLogger(logger),
		rosweb.WithRequestTimeout(cfg.Client.RequestTimeout),
		rosweb.WithRetry(cfg.Client.MaxAttempts, cfg.Client.RetryBackoff),
		rosweb.WithTfInterval(cfg.Client.TfInterval),
	)
	if err != nil {
		return nil, nil, err
	}
	return bridge, logger, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&bridgeURL, "bridge", "", "bridge base URL (overrides client.bridge_url)")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tfCmd)
	rootCmd.AddCommand(pubCmd)
	rootCmd.AddCommand(batteryCmd)
	rootCmd.AddCommand(startupCmd)
	rootCmd.AddCommand(shutdownCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
