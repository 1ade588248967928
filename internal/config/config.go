package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is shared by the bridge server and the dashboard CLI.
type Config struct {
	LogLevel string       `yaml:"log_level"` // debug, info, warn, error
	Client   ClientConfig `yaml:"client"`
	Server   ServerConfig `yaml:"server"`
}

// ClientConfig configures the dashboard side of the bridge.
type ClientConfig struct {
	BridgeURL      string        `yaml:"bridge_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	TfInterval     time.Duration `yaml:"tf_interval"`
}

// ServerConfig configures the bridge server.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	LongPollTimeout time.Duration `yaml:"long_poll_timeout"`
	Metrics         bool          `yaml:"metrics"`
	Valkey          ValkeyConfig  `yaml:"valkey"`
}

// ValkeyConfig selects the valkey broker. An empty address keeps topics in
// memory.
type ValkeyConfig struct {
	Address string `yaml:"address"`
	Prefix  string `yaml:"prefix"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Client: ClientConfig{
			BridgeURL:      "http://localhost:8080",
			RequestTimeout: 30 * time.Second,
			MaxAttempts:    1,
			RetryBackoff:   100 * time.Millisecond,
			TfInterval:     100 * time.Millisecond,
		},
		Server: ServerConfig{
			Listen:          ":8080",
			LongPollTimeout: 10 * time.Second,
			Metrics:         true,
			Valkey: ValkeyConfig{
				Prefix: "rosweb:",
			},
		},
	}
}

// Load reads a YAML configuration file over the defaults. An empty path
// returns the defaults. The result is not validated; callers apply flag
// overrides first and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func Validate(cfg *Config) error {
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	u, err := url.Parse(cfg.Client.BridgeURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("client.bridge_url must be an absolute URL, got %q", cfg.Client.BridgeURL)
	}
	if cfg.Client.RequestTimeout <= 0 {
		return errors.New("client.request_timeout must be > 0")
	}
	if cfg.Client.MaxAttempts < 1 {
		return errors.New("client.max_attempts must be >= 1")
	}
	if cfg.Client.RetryBackoff < 0 {
		return errors.New("client.retry_backoff must be >= 0")
	}
	if cfg.Client.TfInterval <= 0 {
		return errors.New("client.tf_interval must be > 0")
	}

	if cfg.Server.Listen == "" {
		return errors.New("server.listen is required")
	}
	if cfg.Server.LongPollTimeout <= 0 {
		return errors.New("server.long_poll_timeout must be > 0")
	}
	if cfg.Client.RequestTimeout <= cfg.Server.LongPollTimeout {
		return fmt.Errorf("client.request_timeout (%s) must exceed server.long_poll_timeout (%s)",
			cfg.Client.RequestTimeout, cfg.Server.LongPollTimeout)
	}
	return nil
}

// Logger builds a zap logger at the configured level. Debug switches to the
// development encoder.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
