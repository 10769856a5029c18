package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent veneer configuration stored as config.toml
// in the .veneer/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Client  ClientConfig  `toml:"client"`
	Events  EventsConfig  `toml:"events"`
}

// StorageConfig selects where the proxy records turns. Postgres wins over
// SQLite; with neither set turns are kept in memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// ProxyConfig holds proxy-specific settings.
type ProxyConfig struct {
	Upstream    string `toml:"upstream,omitempty"`
	Listen      string `toml:"listen,omitempty"`
	AccessToken string `toml:"access_token,omitempty"`

	// RateLimit is upstream requests per second. Zero disables limiting.
	RateLimit float64 `toml:"rate_limit,omitempty"`
	RateBurst uint    `toml:"rate_burst,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the running
// proxy (e.g. veneer chat, veneer models). Values are full URLs.
type ClientConfig struct {
	ProxyTarget string `toml:"proxy_target,omitempty"`
	AccessToken string `toml:"access_token,omitempty"`
	PricingFile string `toml:"pricing_file,omitempty"`
}

// EventsConfig holds turn event publishing settings. Brokers are comma
// separated; empty disables publishing.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"proxy.upstream": {
		get: func(c *Config) string { return c.Proxy.Upstream },
		set: func(c *Config, v string) error { c.Proxy.Upstream = v; return nil },
	},
	"proxy.listen": {
		get: func(c *Config) string { return c.Proxy.Listen },
		set: func(c *Config, v string) error { c.Proxy.Listen = v; return nil },
	},
	"proxy.access_token": {
		get: func(c *Config) string { return c.Proxy.AccessToken },
		set: func(c *Config, v string) error { c.Proxy.AccessToken = v; return nil },
	},
	"proxy.rate_limit": {
		get: func(c *Config) string {
			if c.Proxy.RateLimit == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Proxy.RateLimit, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 {
				return fmt.Errorf("invalid value for proxy.rate_limit: %q", v)
			}
			c.Proxy.RateLimit = f
			return nil
		},
	},
	"proxy.rate_burst": {
		get: func(c *Config) string {
			if c.Proxy.RateBurst == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Proxy.RateBurst), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for proxy.rate_burst: %w", err)
			}
			c.Proxy.RateBurst = uint(n)
			return nil
		},
	},
	"client.proxy_target": {
		get: func(c *Config) string { return c.Client.ProxyTarget },
		set: func(c *Config, v string) error { c.Client.ProxyTarget = v; return nil },
	},
	"client.access_token": {
		get: func(c *Config) string { return c.Client.AccessToken },
		set: func(c *Config, v string) error { c.Client.AccessToken = v; return nil },
	},
	"client.pricing_file": {
		get: func(c *Config) string { return c.Client.PricingFile },
		set: func(c *Config, v string) error { c.Client.PricingFile = v; return nil },
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
}
