package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TheAlpha16/rosweb-go/internal/config"
	"github.com/TheAlpha16/rosweb-go/server"
)

var (
	configPath string
	listenAddr string
	valkeyAddr string
)

var rootCmd = &cobra.Command{
	Use:   "rosbridge",
	Short: "HTTP bridge between robot topics and web dashboards",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the /ros endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		broker, err := openBroker(cfg, logger)
		if err != nil {
			return err
		}
		defer broker.Close()

		opts := []server.Option{
			server.WithLogger(logger),
			server.WithLongPollTimeout(cfg.Server.LongPollTimeout),
		}
		if cfg.Server.Metrics {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			opts = append(opts, server.WithMetrics(reg))
		}
		srv := server.NewServer(broker, opts...)
		defer srv.Close()

		httpServer := &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errs := make(chan error, 1)
		go func() {
			logger.Info("bridge listening", zap.String("addr", cfg.Server.Listen))
			errs <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errs:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down bridge")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

var tfCmd = &cobra.Command{
	Use:   "tf",
	Short: "Manage transforms stored in valkey",
}

var tfSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Store the latest value of a transform",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.Server.Valkey.Address == "" {
			return errors.New("tf set needs server.valkey.address or --valkey")
		}
		broker, err := openBroker(cfg, logger)
		if err != nil {
			return err
		}
		defer broker.Close()

		if err := broker.SetTransform(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
		return nil
	},
}

func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Server.Listen = listenAddr
	}
	if cmd.Flags().Changed("valkey") {
		cfg.Server.Valkey.Address = valkeyAddr
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := cfg.Logger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openBroker(cfg *config.Config, logger *zap.Logger) (server.Broker, error) {
	if cfg.Server.Valkey.Address == "" {
		logger.Info("using in-memory broker")
		return server.NewMemoryBroker(), nil
	}

	client, err := server.NewValkeyClient(cfg.Server.Valkey.Address)
	if err != nil {
		return nil, fmt.Errorf("connect valkey: %w", err)
	}
	logger.Info("using valkey broker", zap.String("address", cfg.Server.Valkey.Address))
	return server.NewValkeyBroker(client, cfg.Server.Valkey.Prefix, logger), nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&valkeyAddr, "valkey", "", "valkey address, in-memory broker when empty")
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "listen address")

	tfCmd.AddCommand(tfSetCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tfCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
