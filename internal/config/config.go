package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Collector CollectorConfig `mapstructure:"collector"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents the HTTP API server configuration
type ServerConfig struct {
	Host     string `mapstructure:"host"`      // Bind address (e.g., 0.0.0.0 for all interfaces)
	HTTPPort int    `mapstructure:"http_port"` // HTTP server port
}

// NodeAddr identifies a storage node monitor endpoint
type NodeAddr struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Family int    `mapstructure:"family"` // address family as reported by the storage protocol
}

// Key returns the canonical "host:port:family" node key
func (n NodeAddr) Key() string {
	return fmt.Sprintf("%s:%d:%d", n.Host, n.Port, n.Family)
}

// CollectorConfig represents collection round configuration
type CollectorConfig struct {
	AppName       string        `mapstructure:"app_name"`
	MonitorPort   int           `mapstructure:"monitor_port"`   // port of the node monitor HTTP endpoint
	WaitTimeout   time.Duration `mapstructure:"wait_timeout"`   // per-request stat download timeout
	RefreshPeriod time.Duration `mapstructure:"refresh_period"` // delay between regular rounds

	ForbiddenDHTGroups                bool `mapstructure:"forbidden_dht_groups"`                  // multi-backend groups become BROKEN
	ForbiddenUnmatchedGroupTotalSpace bool `mapstructure:"forbidden_unmatched_group_total_space"` // policy flag, applied by an external evaluator
	ForbiddenNSWithoutSettings        bool `mapstructure:"forbidden_ns_without_settings"`         // policy flag, applied by an external evaluator
	ForbiddenDCSharingAmongGroups     bool `mapstructure:"forbidden_dc_sharing_among_groups"`     // policy flag, applied by an external evaluator

	ReservedSpace               uint64        `mapstructure:"reserved_space"`                  // bytes subtracted from free space
	NodeBackendStatStaleTimeout time.Duration `mapstructure:"node_backend_stat_stale_timeout"` // backend stat older than this is STALLED

	NetThreadNum           int `mapstructure:"net_thread_num"`
	IOThreadNum            int `mapstructure:"io_thread_num"`
	NonblockingIOThreadNum int `mapstructure:"nonblocking_io_thread_num"`

	DCCacheUpdatePeriod time.Duration `mapstructure:"infrastructure_dc_cache_update_period"`
	DCCacheValidTime    time.Duration `mapstructure:"infrastructure_dc_cache_valid_time"`

	CacheGroupPathPrefix string     `mapstructure:"cache_group_path_prefix"`
	Nodes                []NodeAddr `mapstructure:"nodes"`
}

// MetadataConfig represents the metadata database configuration
type MetadataConfig struct {
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout_ms"`
	HistoryDB      string        `mapstructure:"history_db"`
	InventoryDB    string        `mapstructure:"inventory_db"`
	JobsDB         string        `mapstructure:"jobs_db"`
}

// EtcdConfig represents etcd configuration
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// QueueConfig represents message queue configuration
type QueueConfig struct {
	Type     string `mapstructure:"type"`     // Queue type: nats (default), redis, kafka, memory
	URL      string `mapstructure:"url"`      // Queue server URL (e.g., nats://localhost:4222)
	Username string `mapstructure:"username"` // Optional authentication
	Password string `mapstructure:"password"` // Optional authentication

	// Redis-specific options
	RedisDB       int    `mapstructure:"redis_db"`
	RedisStream   string `mapstructure:"redis_stream"`
	RedisGroup    string `mapstructure:"redis_group"`
	RedisConsumer string `mapstructure:"redis_consumer"`

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaGroupID string   `mapstructure:"kafka_group_id"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Collector.Validate(); err != nil {
		return fmt.Errorf("collector config: %w", err)
	}

	if err := c.Etcd.Validate(); err != nil {
		return fmt.Errorf("etcd config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}

	return nil
}

// Validate validates collector configuration
func (c *CollectorConfig) Validate() error {
	if c.MonitorPort < 1 || c.MonitorPort > 65535 {
		return fmt.Errorf("invalid monitor_port: %d", c.MonitorPort)
	}

	if c.WaitTimeout <= 0 {
		return fmt.Errorf("wait_timeout must be positive")
	}

	if c.NodeBackendStatStaleTimeout <= 0 {
		return fmt.Errorf("node_backend_stat_stale_timeout must be positive")
	}

	for _, node := range c.Nodes {
		if node.Host == "" {
			return fmt.Errorf("node host is required")
		}
		if node.Port < 1 || node.Port > 65535 {
			return fmt.Errorf("invalid node port: %d", node.Port)
		}
	}

	return nil
}

// Validate validates etcd configuration
func (c *EtcdConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("etcd.endpoints is required")
	}

	if c.DialTimeout <= 0 {
		return fmt.Errorf("etcd.dial_timeout must be positive")
	}

	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}
