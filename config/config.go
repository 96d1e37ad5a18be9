package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Simulator  SimulatorConfig  `yaml:"simulator"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	NATS       NATSConfig       `yaml:"nats"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size" env:"MONITOR_WORKER_POOL_SIZE, overwrite"`
	QueueSize int `yaml:"queue_size" env:"MONITOR_WORKER_QUEUE_SIZE, overwrite"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" env:"MONITOR_VAPID_PUBLIC_KEY, overwrite"`
	PrivateKey string `yaml:"vapid_private_key" env:"MONITOR_VAPID_PRIVATE_KEY, overwrite"`
	Subject    string `yaml:"subject" env:"MONITOR_VAPID_SUBJECT, overwrite"`
	TTL        int    `yaml:"ttl" env:"MONITOR_PUSH_TTL, overwrite"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port" env:"MONITOR_PORT, overwrite"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec" env:"MONITOR_RATE_LIMIT_PER_SEC, overwrite"`
	RateLimitBurst  int      `yaml:"rate_limit_burst" env:"MONITOR_RATE_LIMIT_BURST, overwrite"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds" env:"MONITOR_CACHE_TTL_SECONDS, overwrite"`
	AllowedOrigins  []string `yaml:"allowed_origins" env:"MONITOR_ALLOWED_ORIGINS, overwrite"`
	StaticDir       string   `yaml:"static_dir" env:"MONITOR_STATIC_DIR, overwrite"`
}

// SimulatorConfig controls the telemetry broadcast loop.
type SimulatorConfig struct {
	Enabled          bool          `yaml:"enabled" env:"MONITOR_SIMULATOR_ENABLED, overwrite"`
	IntervalMS       int           `yaml:"interval_ms" env:"MONITOR_SIMULATOR_INTERVAL_MS, overwrite"`
	Interval         time.Duration `yaml:"-"` // Ignored by YAML parser
	FaultProbability float64       `yaml:"fault_probability" env:"MONITOR_FAULT_PROBABILITY, overwrite"`
	Seed             uint64        `yaml:"seed" env:"MONITOR_SIMULATOR_SEED, overwrite"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" env:"MONITOR_DB_DRIVER, overwrite"`
	DSN                    string `yaml:"dsn" env:"MONITOR_DB_DSN, overwrite"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	Seed                   bool   `yaml:"seed" env:"MONITOR_DB_SEED, overwrite"`
}

// NATSConfig configures the optional outbound fault event stream.
type NATSConfig struct {
	URL     string `yaml:"url" env:"MONITOR_NATS_URL, overwrite"`
	Subject string `yaml:"subject" env:"MONITOR_NATS_SUBJECT, overwrite"`
	Stream  string `yaml:"stream" env:"MONITOR_NATS_STREAM, overwrite"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT, overwrite"`
	ServiceName  string `yaml:"service_name"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level" env:"MONITOR_LOG_LEVEL, overwrite"`
	Format string `yaml:"format" env:"MONITOR_LOG_FORMAT, overwrite"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := base()
	cfg.applyDefaults()
	return cfg
}

// base holds the boolean defaults, which YAML and the environment can only switch off.
func base() *Config {
	return &Config{
		Simulator: SimulatorConfig{Enabled: true},
		Database:  DatabaseConfig{Seed: true},
	}
}

// Load reads the configuration from the given path and overlays MONITOR_* environment variables.
// A missing file is not an error; defaults and the environment are used instead.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := base()

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("path", path).Msg("config file not found; using defaults and environment")
	default:
		return nil, err
	}

	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 3000
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 20
	}
	if c.Server.CacheTTLSeconds < 0 {
		c.Server.CacheTTLSeconds = 0
	}

	if c.Simulator.IntervalMS <= 0 {
		c.Simulator.IntervalMS = 2000
	}
	c.Simulator.Interval = time.Duration(c.Simulator.IntervalMS) * time.Millisecond
	if c.Simulator.FaultProbability == 0 {
		c.Simulator.FaultProbability = 0.02
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.DSN == "" && c.Database.Driver == DriverSQLite {
		c.Database.DSN = "industrial_iot.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 2
	}

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}

	if c.WorkerPool.Size <= 0 {
		c.WorkerPool.Size = 1
	}
	if c.WorkerPool.QueueSize <= 0 {
		c.WorkerPool.QueueSize = 64
	}

	if c.NATS.Subject == "" {
		c.NATS.Subject = "monitor.faults.detected"
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "MONITOR_FAULTS"
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "monitord"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Simulator.FaultProbability < 0 || c.Simulator.FaultProbability > 1 {
		return fmt.Errorf("simulator.fault_probability must be within [0,1], got %v", c.Simulator.FaultProbability)
	}
	if c.Simulator.Interval <= 0 {
		return errors.New("simulator.interval_ms must be positive")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if (c.Push.PublicKey == "") != (c.Push.PrivateKey == "") {
		return errors.New("push.vapid_public_key and push.vapid_private_key must be set together")
	}
	return nil
}
