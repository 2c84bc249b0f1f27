package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Sampler       SamplerConfig       `mapstructure:"sampler"`
	Alerting      AlertingConfig      `mapstructure:"alerting"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Escalation    EscalationConfig    `mapstructure:"escalation"`
	Incidents     IncidentsConfig     `mapstructure:"incidents"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	WebSocket     WebSocketConfig     `mapstructure:"websocket"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SamplerConfig controls the metric sampling loop.
type SamplerConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	Interval         string         `mapstructure:"interval"`
	PersistSnapshots bool           `mapstructure:"persist_snapshots"`
	DatabaseProbe    bool           `mapstructure:"database_probe"`
	Services         []ServiceProbe `mapstructure:"services"`
	Thresholds       SamplerDBTiers `mapstructure:"db_tiers"`
}

// ServiceProbe describes an external service health probe.
type ServiceProbe struct {
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	Timeout string `mapstructure:"timeout"`
}

// SamplerDBTiers holds latency boundaries for database health tiers, in
// milliseconds.
type SamplerDBTiers struct {
	SlowMs     float64 `mapstructure:"slow_ms"`
	DegradedMs float64 `mapstructure:"degraded_ms"`
}

// AlertingConfig controls rule evaluation and the alert lifecycle.
type AlertingConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DefinitionsPath string `mapstructure:"definitions_path"`
	Retention       string `mapstructure:"retention"`
	CleanupInterval string `mapstructure:"cleanup_interval"`
	MaxAlerts       int    `mapstructure:"max_alerts"`
}

// NotificationsConfig controls the notification dispatcher.
type NotificationsConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DeliveryTimeout string `mapstructure:"delivery_timeout"`
	QueueSize       int    `mapstructure:"queue_size"`
}

// EscalationConfig controls the escalation checker.
type EscalationConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	CheckInterval string `mapstructure:"check_interval"`
}

// IncidentsConfig controls incident management and response execution.
type IncidentsConfig struct {
	Enabled                 bool   `mapstructure:"enabled"`
	ResolutionCheckInterval string `mapstructure:"resolution_check_interval"`
	HealthyResolveAfter     string `mapstructure:"healthy_resolve_after"`
	IdleResolveAfter        string `mapstructure:"idle_resolve_after"`
	ExecutionTimeout        string `mapstructure:"execution_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
	Path    string `mapstructure:"path"`
}

type WebSocketConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	WriteTimeout int  `mapstructure:"write_timeout"`
	PingInterval int  `mapstructure:"ping_interval"`
}

// Load reads configuration from configs/config.yaml and the environment.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("alerting.definitions_path", "DEFINITIONS_PATH")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults and env cover the essentials.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3301)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("database.path", "./data/pulseguard.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("sampler.enabled", true)
	viper.SetDefault("sampler.interval", "30s")
	viper.SetDefault("sampler.persist_snapshots", true)
	viper.SetDefault("sampler.database_probe", true)
	viper.SetDefault("sampler.db_tiers.slow_ms", 100.0)
	viper.SetDefault("sampler.db_tiers.degraded_ms", 500.0)

	viper.SetDefault("alerting.enabled", true)
	viper.SetDefault("alerting.definitions_path", "./configs/definitions.yaml")
	viper.SetDefault("alerting.retention", "168h")
	viper.SetDefault("alerting.cleanup_interval", "1h")
	viper.SetDefault("alerting.max_alerts", 1000)

	viper.SetDefault("notifications.enabled", true)
	viper.SetDefault("notifications.delivery_timeout", "30s")
	viper.SetDefault("notifications.queue_size", 256)

	viper.SetDefault("escalation.enabled", true)
	viper.SetDefault("escalation.check_interval", "60s")

	viper.SetDefault("incidents.enabled", true)
	viper.SetDefault("incidents.resolution_check_interval", "30s")
	viper.SetDefault("incidents.healthy_resolve_after", "5m")
	viper.SetDefault("incidents.idle_resolve_after", "10m")
	viper.SetDefault("incidents.execution_timeout", "60s")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prefix", "pulseguard")
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("websocket.enabled", true)
	viper.SetDefault("websocket.write_timeout", 10)
	viper.SetDefault("websocket.ping_interval", 30)
}
