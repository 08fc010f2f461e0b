package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"lotusgift/pkg/chain"
	"lotusgift/pkg/client"
	"lotusgift/pkg/poller"
	"lotusgift/pkg/server"
	"lotusgift/pkg/types"
)

// Config holds the application configuration
type Config struct {
	EngineBaseURL string
	EngineAPIKey  string
	EngineTimeout time.Duration

	PrivateKey        string
	RelayerPrivateKey string
	Mnemonic          string
	MnemonicPath      string

	Networks map[int64]chain.Network

	PollInterval    time.Duration
	PollMaxAttempts int
	PollRetryBudget int

	JournalPath string
	ServerAddr  string
	LogLevel    string
}

var globalConfig *Config

// Load reads configuration from environment variables and the optional
// .lotusgift.yaml in $HOME or the working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".lotusgift")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return load(v)
}

// LoadFile reads configuration from an explicit file plus the environment.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("engine.base_url", client.DefaultBaseURL)
	v.SetDefault("engine.timeout", client.DefaultTimeout)
	v.SetDefault("mnemonic_path", chain.DefaultDerivationPath)
	v.SetDefault("poll.interval", poller.DefaultInterval)
	v.SetDefault("poll.max_attempts", poller.DefaultMaxAttempts)
	v.SetDefault("poll.retry_budget", poller.DefaultRetryBudget)
	v.SetDefault("server.addr", server.DefaultAddr)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("LOTUSGIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names used by the trade scripts and the web proxy.
	_ = v.BindEnv("engine.api_key", "LOTUSGIFT_ENGINE_API_KEY", "ZIRCUIT_ENGINE_API_KEY", "API_KEY")
	_ = v.BindEnv("engine.base_url", "LOTUSGIFT_ENGINE_BASE_URL", "ZIRCUIT_ENGINE_API_BASE")
	_ = v.BindEnv("private_key", "LOTUSGIFT_PRIVATE_KEY", "PRIVATE_KEY")
	_ = v.BindEnv("relayer_private_key", "LOTUSGIFT_RELAYER_PRIVATE_KEY", "RELAYER_PRIVATE_KEY")

	cfg := &Config{
		EngineBaseURL:     v.GetString("engine.base_url"),
		EngineAPIKey:      v.GetString("engine.api_key"),
		EngineTimeout:     v.GetDuration("engine.timeout"),
		PrivateKey:        v.GetString("private_key"),
		RelayerPrivateKey: v.GetString("relayer_private_key"),
		Mnemonic:          v.GetString("mnemonic"),
		MnemonicPath:      v.GetString("mnemonic_path"),
		PollInterval:      v.GetDuration("poll.interval"),
		PollMaxAttempts:   v.GetInt("poll.max_attempts"),
		PollRetryBudget:   v.GetInt("poll.retry_budget"),
		JournalPath:       v.GetString("journal_path"),
		ServerAddr:        v.GetString("server.addr"),
		LogLevel:          v.GetString("log_level"),
	}

	networks, err := loadNetworks(v)
	if err != nil {
		return nil, err
	}
	cfg.Networks = networks

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadNetworks starts from the built-in chains and applies chains.<id>.*
// overrides. Chains only named in the config file are added.
func loadNetworks(v *viper.Viper) (map[int64]chain.Network, error) {
	networks := chain.DefaultNetworks()

	for key := range v.GetStringMap("chains") {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid chain id %q in config", key)
		}
		if _, ok := networks[id]; !ok {
			networks[id] = chain.Network{ChainID: id, Name: key}
		}
	}

	for id, n := range networks {
		prefix := fmt.Sprintf("chains.%d.", id)
		if url := v.GetString(prefix + "rpc_url"); url != "" {
			n.RPCURL = url
		}
		if v.IsSet(prefix + "gas_price") {
			gp := v.GetInt64(prefix + "gas_price")
			n.GasPrice = &gp
		}
		if v.IsSet(prefix + "gas_limit") {
			gl := v.GetUint64(prefix + "gas_limit")
			n.GasLimit = &gl
		}
		networks[id] = n
	}

	return networks, nil
}

func (c *Config) validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %s", c.PollInterval)
	}
	if c.PollMaxAttempts <= 0 {
		return fmt.Errorf("poll.max_attempts must be positive, got %d", c.PollMaxAttempts)
	}
	if c.PollRetryBudget < 0 {
		return fmt.Errorf("poll.retry_budget must not be negative, got %d", c.PollRetryBudget)
	}
	return nil
}

// UserIdentity is the account whose funds move. A private key wins over a
// mnemonic.
func (c *Config) UserIdentity() (chain.Identity, error) {
	var (
		id  *chain.KeyIdentity
		err error
	)
	switch {
	case c.PrivateKey != "":
		id, err = chain.IdentityFromHex(c.PrivateKey)
	case c.Mnemonic != "":
		id, err = chain.IdentityFromMnemonic(c.Mnemonic, c.MnemonicPath)
	default:
		return nil, fmt.Errorf("%w: set LOTUSGIFT_PRIVATE_KEY or mnemonic in .lotusgift.yaml", types.ErrNoIdentity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user identity: %w", err)
	}
	return id, nil
}

// RelayerIdentity is the gas-paying account of the gasless path.
func (c *Config) RelayerIdentity() (chain.Identity, error) {
	if c.RelayerPrivateKey == "" {
		return nil, fmt.Errorf("%w: set LOTUSGIFT_RELAYER_PRIVATE_KEY for gasless trades", types.ErrNoIdentity)
	}
	id, err := chain.IdentityFromHex(c.RelayerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load relayer identity: %w", err)
	}
	return id, nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		globalConfig = cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
