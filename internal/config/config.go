package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	APIKey      string `yaml:"api_key"`
	MetricsPort int    `yaml:"metrics_port"` // worker only
}

// DatabaseConfig selects the store. Driver "postgres" uses the network
// settings; driver "sqlite" uses Path.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
	Path     string `yaml:"path"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL             string `yaml:"url"`
	ConsumerWorkers int    `yaml:"consumer_workers"`
}

type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// EngineConfig drives the per-run actor loops of the worker.
type EngineConfig struct {
	TickInterval        time.Duration `yaml:"tick_interval"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	FlushInterval       time.Duration `yaml:"flush_interval"`
	CalibrationDuration time.Duration `yaml:"calibration_duration"`
	InboxSize           int           `yaml:"inbox_size"`
	OutboxSize          int           `yaml:"outbox_size"`
	StopTimeout         time.Duration `yaml:"stop_timeout"`
	ControlTimeout      time.Duration `yaml:"control_timeout"`
	ExportRetention     time.Duration `yaml:"export_retention"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Engine.InboxSize < 1 {
		return fmt.Errorf("engine.inbox_size must be positive")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8082
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.NATS.ConsumerWorkers == 0 {
		cfg.NATS.ConsumerWorkers = 1
	}
	if cfg.Engine.TickInterval == 0 {
		cfg.Engine.TickInterval = time.Second
	}
	if cfg.Engine.SweepInterval == 0 {
		cfg.Engine.SweepInterval = 500 * time.Millisecond
	}
	if cfg.Engine.FlushInterval == 0 {
		cfg.Engine.FlushInterval = 30 * time.Second
	}
	if cfg.Engine.CalibrationDuration == 0 {
		cfg.Engine.CalibrationDuration = 60 * time.Second
	}
	if cfg.Engine.InboxSize == 0 {
		cfg.Engine.InboxSize = 256
	}
	if cfg.Engine.OutboxSize == 0 {
		cfg.Engine.OutboxSize = 256
	}
	if cfg.Engine.StopTimeout == 0 {
		cfg.Engine.StopTimeout = 10 * time.Second
	}
	if cfg.Engine.ControlTimeout == 0 {
		cfg.Engine.ControlTimeout = 15 * time.Second
	}
	if cfg.Engine.ExportRetention == 0 {
		cfg.Engine.ExportRetention = 90 * 24 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MF_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MF_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("MF_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("MF_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MF_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("MF_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("MF_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("MF_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("MF_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("MF_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("MF_MINIO_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MinIO.Enabled = b
		}
	}
	if v := os.Getenv("MF_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("MF_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("MF_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("MF_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("MF_ENGINE_INBOX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.InboxSize = n
		}
	}
	if v := os.Getenv("MF_ENGINE_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.FlushInterval = d
		}
	}
	if v := os.Getenv("MF_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
