// Package config loads client settings from flags, environment and an
// optional config file through viper.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/decentium/decentium-go/internal/cache"
	"github.com/decentium/decentium-go/internal/client"
	"github.com/decentium/decentium-go/internal/decentium"
	"github.com/decentium/decentium-go/internal/retry"
)

// EnvPrefix prefixes every environment variable, e.g. DECENTIUM_NODE_URL.
const EnvPrefix = "DECENTIUM"

// Setting keys, also used as flag names.
const (
	KeyNodeURL        = "node-url"
	KeyContract       = "contract"
	KeyBlockCacheSize = "block-cache-size"
	KeyBlockMaxAge    = "block-max-age"
	KeyMaxAttempts    = "max-attempts"
	KeyRetryDelay     = "retry-delay"
	KeyTimeout        = "timeout"
	KeyRateLimit      = "rate-limit"
	KeyWhitelist      = "whitelist"
	KeyMaxConcurrency = "max-concurrency"
	KeyLogLevel       = "log-level"
	KeyMetricsAddr    = "metrics-addr"
)

const DefaultNodeURL = "https://eos.greymass.com"

type Config struct {
	NodeURL        string
	Contract       string
	BlockCacheSize int
	BlockMaxAge    time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
	Timeout        time.Duration
	RateLimit      float64
	Whitelist      []string
	MaxConcurrency uint
	LogLevel       string
	MetricsAddr    string
}

// ExtractConfig configures block range extraction.
type ExtractConfig struct {
	MaxConcurrency uint
	// Live keeps following the chain head after the range is done.
	Live bool
	// BlockTime is the polling interval of live extraction.
	BlockTime time.Duration
	// FillGaps re-extracts blocks missing from the output before starting.
	FillGaps bool
}

// RegisterFlags declares the persistent flags and binds them into v.
func RegisterFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	flags.String(KeyNodeURL, DefaultNodeURL, "Node API endpoint")
	flags.String(KeyContract, decentium.DefaultContract, "Decentium contract account")
	flags.Int(KeyBlockCacheSize, cache.DefaultMaxBlocks, "Number of blocks kept in memory")
	flags.Duration(KeyBlockMaxAge, 0, "Evict cached blocks older than this (0 disables)")
	flags.Int(KeyMaxAttempts, retry.DefaultMaxAttempts, "Attempts per node request")
	flags.Duration(KeyRetryDelay, retry.DefaultDelay, "Delay between request attempts")
	flags.Duration(KeyTimeout, client.DefaultTimeout, "Timeout of a single request attempt")
	flags.Float64(KeyRateLimit, 0, "Maximum node requests per second (0 disables)")
	flags.StringSlice(KeyWhitelist, nil, "Only keep actions of these accounts")
	flags.Uint(KeyMaxConcurrency, decentium.DefaultConcurrency, "Maximum concurrent block fetches")
	flags.String(KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	flags.String(KeyMetricsAddr, "", "Serve prometheus metrics on this address (empty disables)")

	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	return nil
}

// NewViper returns a viper instance reading DECENTIUM_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(KeyNodeURL, DefaultNodeURL)
	v.SetDefault(KeyContract, decentium.DefaultContract)
	v.SetDefault(KeyBlockCacheSize, cache.DefaultMaxBlocks)
	v.SetDefault(KeyMaxAttempts, retry.DefaultMaxAttempts)
	v.SetDefault(KeyRetryDelay, retry.DefaultDelay)
	v.SetDefault(KeyTimeout, client.DefaultTimeout)
	v.SetDefault(KeyMaxConcurrency, decentium.DefaultConcurrency)
	v.SetDefault(KeyLogLevel, "info")
	return v
}

// ReadFile merges a config file into v. The format follows the extension.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// Load reads the settings from v and validates them.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		NodeURL:        v.GetString(KeyNodeURL),
		Contract:       v.GetString(KeyContract),
		BlockCacheSize: v.GetInt(KeyBlockCacheSize),
		BlockMaxAge:    v.GetDuration(KeyBlockMaxAge),
		MaxAttempts:    v.GetInt(KeyMaxAttempts),
		RetryDelay:     v.GetDuration(KeyRetryDelay),
		Timeout:        v.GetDuration(KeyTimeout),
		RateLimit:      v.GetFloat64(KeyRateLimit),
		Whitelist:      v.GetStringSlice(KeyWhitelist),
		MaxConcurrency: v.GetUint(KeyMaxConcurrency),
		LogLevel:       v.GetString(KeyLogLevel),
		MetricsAddr:    v.GetString(KeyMetricsAddr),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.NodeURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q: must be an http(s) URL", KeyNodeURL, c.NodeURL)
	}
	if c.Contract == "" {
		return fmt.Errorf("%s must not be empty", KeyContract)
	}
	if c.BlockCacheSize < 1 {
		return fmt.Errorf("%s must be positive, got %d", KeyBlockCacheSize, c.BlockCacheSize)
	}
	if c.BlockMaxAge < 0 {
		return fmt.Errorf("%s must not be negative, got %s", KeyBlockMaxAge, c.BlockMaxAge)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyMaxAttempts, c.MaxAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%s must not be negative, got %s", KeyRetryDelay, c.RetryDelay)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyTimeout, c.Timeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%s must not be negative, got %v", KeyRateLimit, c.RateLimit)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("%s must be at least 1", KeyMaxConcurrency)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ClientConfig returns the gateway settings.
func (c Config) ClientConfig() client.Config {
	return client.Config{
		NodeURL:   c.NodeURL,
		Timeout:   c.Timeout,
		Retry:     retry.Policy{MaxAttempts: c.MaxAttempts, Delay: c.RetryDelay},
		RateLimit: c.RateLimit,
		RateBurst: 1,
		Whitelist: c.Whitelist,
	}
}

// CacheConfig returns the block cache bounds.
func (c Config) CacheConfig() cache.Config {
	return cache.Config{MaxBlocks: c.BlockCacheSize, MaxAge: c.BlockMaxAge}
}

// ParseLogLevel maps a level name to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("invalid %s %q", KeyLogLevel, level)
	}
	return l, nil
}
