// Package config loads metatx settings from a config file, METATX_ environment
// variables and an optional .env file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/dropforge/metatx/go/gasprice"
)

// EnvPrefix is prepended to every environment override, e.g. METATX_RPC_URL.
const EnvPrefix = "METATX"

// Config is the full metatx configuration.
type Config struct {
	RPCURL              string        `mapstructure:"rpc_url"`
	ChainID             int64         `mapstructure:"chain_id"`
	ForwarderAddress    string        `mapstructure:"forwarder_address"`
	RelayerURL          string        `mapstructure:"relayer_url"`
	RelayerTimeout      time.Duration `mapstructure:"relayer_timeout"`
	GasSpeed            string        `mapstructure:"gas_speed"`
	MaxGasPriceGwei     float64       `mapstructure:"max_gas_price_gwei"`
	PrivateKeyEnv       string        `mapstructure:"private_key_env"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	// ReceiptPollAttempts of zero waits until the caller's context is done
	ReceiptPollAttempts uint `mapstructure:"receipt_poll_attempts"`

	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig configures the reference relayer.
type ServerConfig struct {
	ListenAddr    string `mapstructure:"listen_addr"`
	RelayerKeyEnv string `mapstructure:"relayer_key_env"`
	// Forwarders accepted by the relayer; empty accepts ForwarderAddress only
	Forwarders []string `mapstructure:"forwarders"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every key with its default so environment overrides
// apply even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("rpc_url", "")
	v.SetDefault("chain_id", 137)
	v.SetDefault("forwarder_address", "")
	v.SetDefault("relayer_url", "")
	v.SetDefault("relayer_timeout", 30*time.Second)
	v.SetDefault("gas_speed", string(gasprice.DefaultSpeed))
	v.SetDefault("max_gas_price_gwei", gasprice.DefaultMaxGasPriceGwei)
	v.SetDefault("private_key_env", "PRIVATE_KEY")
	v.SetDefault("receipt_poll_interval", 2*time.Second)
	v.SetDefault("receipt_poll_attempts", 0)
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.relayer_key_env", "RELAYER_PRIVATE_KEY")
	v.SetDefault("server.forwarders", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads the config file at path (optional) and the environment.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-prepared viper instance, typically one with
// command flags already bound.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LoadEnvFile loads a .env file into the process environment. A missing file
// is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if c.ChainID < 0 {
		return fmt.Errorf("chain_id must not be negative")
	}
	if c.ForwarderAddress != "" && !common.IsHexAddress(c.ForwarderAddress) {
		return fmt.Errorf("forwarder_address is not an address: %q", c.ForwarderAddress)
	}
	if c.RelayerURL != "" {
		u, err := url.Parse(c.RelayerURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("relayer_url is not a URL: %q", c.RelayerURL)
		}
	}
	if c.RelayerTimeout < 0 {
		return fmt.Errorf("relayer_timeout must not be negative")
	}
	if _, err := gasprice.ParseSpeed(c.GasSpeed); err != nil {
		return fmt.Errorf("gas_speed: %w", err)
	}
	if c.MaxGasPriceGwei < 0 {
		return fmt.Errorf("max_gas_price_gwei must not be negative")
	}
	if c.ReceiptPollInterval <= 0 {
		return fmt.Errorf("receipt_poll_interval must be positive")
	}
	for _, f := range c.Server.Forwarders {
		if !common.IsHexAddress(f) {
			return fmt.Errorf("server.forwarders: %q is not an address", f)
		}
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}
	return nil
}

// PrivateKey returns the signer key named by PrivateKeyEnv.
func (c Config) PrivateKey() (string, error) {
	return keyFromEnv(c.PrivateKeyEnv)
}

// RelayerKey returns the relayer key named by Server.RelayerKeyEnv.
func (c Config) RelayerKey() (string, error) {
	return keyFromEnv(c.Server.RelayerKeyEnv)
}

// AcceptedForwarders lists the forwarders the relayer should accept.
func (c Config) AcceptedForwarders() []string {
	if len(c.Server.Forwarders) > 0 {
		return c.Server.Forwarders
	}
	if c.ForwarderAddress != "" {
		return []string{c.ForwarderAddress}
	}
	return nil
}

func keyFromEnv(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("no environment variable configured for the key")
	}
	key := strings.TrimSpace(os.Getenv(name))
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return key, nil
}
