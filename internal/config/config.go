// Package config implements the layered configuration described in spec
// §10.1: code defaults, overridden by a YAML file, overridden by MEMORYD_*
// environment variables, via spf13/viper. There is no CLI-flag layer.
package config

import (
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/kittclouds/memoryd/internal/cache"
)

// Config is the fully-resolved configuration for one engine instance.
type Config struct {
	Cache struct {
		MaxTotalBytes         int     `mapstructure:"max_total_bytes"`
		CompressionThreshold  float64 `mapstructure:"compression_threshold"`
		MinCompressionSavings float64 `mapstructure:"min_compression_savings"`
	} `mapstructure:"cache"`

	Storage struct {
		Root string `mapstructure:"root"`
	} `mapstructure:"storage"`

	RPC struct {
		RateLimits map[string]int `mapstructure:"rate_limits"`
	} `mapstructure:"rpc"`

	Maintenance struct {
		ResourceSampleIntervalSeconds int `mapstructure:"resource_sample_interval_seconds"`
		IdleWorkspaceTTLHours         int `mapstructure:"idle_workspace_ttl_hours"`
	} `mapstructure:"maintenance"`

	Workspace struct {
		MaxOpen int `mapstructure:"max_open"`
	} `mapstructure:"workspace"`

	Dedup struct {
		SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	} `mapstructure:"dedup"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// DefaultRateLimits mirrors spec §6's per-method token-bucket defaults,
// refilled per second.
func DefaultRateLimits() map[string]int {
	return map[string]int{
		"store_memory":           10,
		"search_memory":          20,
		"get_memory_stats":       5,
		"delete_memory":          5,
		"check_duplicate_memory": 10,
		"migrate_memory_tier":    5,
		"get_memory_analytics":   3,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.max_total_bytes", cache.DefaultConfig().MaxTotalBytes)
	v.SetDefault("cache.compression_threshold", cache.DefaultConfig().CompressionThreshold)
	v.SetDefault("cache.min_compression_savings", cache.DefaultConfig().MinCompressionSavings)
	v.SetDefault("storage.root", "./memoryd-data")
	for method, limit := range DefaultRateLimits() {
		v.SetDefault("rpc.rate_limits."+method, limit)
	}
	v.SetDefault("maintenance.resource_sample_interval_seconds", 30)
	v.SetDefault("maintenance.idle_workspace_ttl_hours", 24)
	v.SetDefault("workspace.max_open", 10)
	v.SetDefault("dedup.similarity_threshold", 0.8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load builds a Config by layering defaults, an optional YAML file at
// configPath, and MEMORYD_*-prefixed environment variables, in that
// precedence order (later layers win). configPath may be empty, in which
// case only defaults and env vars apply.
func Load(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MEMORYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}
	return &cfg, v, nil
}

// WatchAndReload arms viper.WatchConfig and invokes onChange with the
// freshly unmarshaled Config whenever the config file changes. This package
// applies none of the new values itself: running rate limiters, the cache
// budget and open backends keep their startup settings unless onChange
// acts on them. A file that fails to unmarshal is ignored.
func WatchAndReload(v *viper.Viper, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
}
