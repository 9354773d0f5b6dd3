package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/clustereye")
	}

	setDefaults(v)

	// Enable environment variable overrides
	v.SetEnvPrefix("CLUSTEREYE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8383)

	// Collector defaults
	v.SetDefault("collector.app_name", "clustereye-collector")
	v.SetDefault("collector.monitor_port", 10025)
	v.SetDefault("collector.wait_timeout", "10s")
	v.SetDefault("collector.refresh_period", "60s")
	v.SetDefault("collector.forbidden_dht_groups", false)
	v.SetDefault("collector.forbidden_unmatched_group_total_space", false)
	v.SetDefault("collector.forbidden_ns_without_settings", false)
	v.SetDefault("collector.forbidden_dc_sharing_among_groups", false)
	v.SetDefault("collector.reserved_space", uint64(105)<<30)
	v.SetDefault("collector.node_backend_stat_stale_timeout", "120s")
	v.SetDefault("collector.net_thread_num", 3)
	v.SetDefault("collector.io_thread_num", 3)
	v.SetDefault("collector.nonblocking_io_thread_num", 3)
	v.SetDefault("collector.infrastructure_dc_cache_update_period", "150s")
	v.SetDefault("collector.infrastructure_dc_cache_valid_time", "168h")

	// Metadata defaults
	v.SetDefault("metadata.connect_timeout_ms", "5000ms")

	// Etcd defaults
	v.SetDefault("etcd.endpoints", []string{"http://localhost:2379"})
	v.SetDefault("etcd.dial_timeout", "5s")

	// Queue defaults
	v.SetDefault("queue.url", "nats://localhost:4222")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from file or returns default config
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 8383,
		},
		Collector: CollectorConfig{
			AppName:                     "clustereye-collector",
			MonitorPort:                 10025,
			WaitTimeout:                 10 * time.Second,
			RefreshPeriod:               60 * time.Second,
			ReservedSpace:               uint64(105) << 30,
			NodeBackendStatStaleTimeout: 120 * time.Second,
			NetThreadNum:                3,
			IOThreadNum:                 3,
			NonblockingIOThreadNum:      3,
			DCCacheUpdatePeriod:         150 * time.Second,
			DCCacheValidTime:            168 * time.Hour,
		},
		Metadata: MetadataConfig{
			ConnectTimeout: 5000 * time.Millisecond,
		},
		Etcd: EtcdConfig{
			Endpoints:   []string{"http://localhost:2379"},
			DialTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
