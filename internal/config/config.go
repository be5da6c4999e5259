// Package config loads the layered application configuration: built-in
// defaults, then a YAML config file, then APP_-prefixed environment
// variables, then CLI flags bound in by the caller.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every recognized configuration key from the external
// interface table, with the documented defaults applied by Load.
type Config struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`

	DatabaseURL string `mapstructure:"database_url"`

	HTTPServerAddress    string `mapstructure:"http_server_address"`
	HTTPServerStaticPath string `mapstructure:"http_server_static_path"`

	FetchFeedsFilename    string `mapstructure:"fetch_feeds_filename"`
	FetchRetainSrc        bool   `mapstructure:"fetch_retain_src"`
	FetchSkipEntryUpdate  bool   `mapstructure:"fetch_skip_entry_update"`
	FetchMinFetchPeriod   int    `mapstructure:"fetch_min_fetch_period"`
	FetchRequestTimeout   int    `mapstructure:"fetch_request_timeout"`
	FetchConcurrencyLimit int    `mapstructure:"fetch_concurrency_limit"`

	DatabaseMaxConns int `mapstructure:"database_max_conns"`
}

// Load reads configuration from a YAML file (if present), then APP_-prefixed
// environment variables, applying the documented built-in defaults first.
// CLI flags should be bound on top of the returned viper instance by the
// caller (viper's BindPFlag) before unmarshalling again.
func Load(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()

	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("database_url", "feedspool.sqlite")
	v.SetDefault("http_server_address", "0.0.0.0:3010")
	v.SetDefault("http_server_static_path", "./www/")
	v.SetDefault("fetch_feeds_filename", "feed-urls.txt")
	v.SetDefault("fetch_retain_src", false)
	v.SetDefault("fetch_skip_entry_update", true)
	v.SetDefault("fetch_min_fetch_period", 1800)
	v.SetDefault("fetch_request_timeout", 5)
	v.SetDefault("fetch_concurrency_limit", 16)
	v.SetDefault("database_max_conns", 8)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("feedspool")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/feedspool/")
		v.AddConfigPath("$HOME/.feedspool")
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults/env/flags still apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return &cfg, v, nil
}

// MinFetchPeriodDuration converts FetchMinFetchPeriod (seconds) into a
// time.Duration. It returns an error if the value cannot be represented,
// matching the poll state machine's DurationError path.
func (c *Config) MinFetchPeriodDuration() (time.Duration, error) {
	return secondsToDuration(c.FetchMinFetchPeriod)
}

// RequestTimeoutDuration converts FetchRequestTimeout (seconds) into a
// time.Duration.
func (c *Config) RequestTimeoutDuration() (time.Duration, error) {
	return secondsToDuration(c.FetchRequestTimeout)
}

func secondsToDuration(seconds int) (time.Duration, error) {
	if seconds < 0 {
		return 0, fmt.Errorf("duration seconds must be non-negative, got %d", seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}
