package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
// Engine thresholds and intervals live in the Settings entity, not here.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Remote   RemoteConfig   `yaml:"remote"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	Backup   BackupConfig   `yaml:"backup"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains local HTTP API settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	APIKey          string   `yaml:"-"` // env-only; empty disables auth
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig describes the remote mirror session. An empty URL means
// pure local mode.
type RemoteConfig struct {
	URL      string   `yaml:"url"`
	APIKey   string   `yaml:"-"` // env-only, never in YAML
	Timeout  Duration `yaml:"timeout"`
	ClientID string   `yaml:"client_id"`
}

// MirrorConfig contains settings of the reference mirror server.
type MirrorConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// BackupConfig contains local backup and upload settings.
type BackupConfig struct {
	Dir     string        `yaml:"dir"`
	Keep    int           `yaml:"keep"`
	Storage StorageConfig `yaml:"storage"`
}

// StorageConfig contains S3-compatible object storage settings.
// An empty Bucket keeps backups local only.
type StorageConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	Prefix    string   `yaml:"prefix"`
	AccessKey string   `yaml:"-"` // env-only
	SecretKey string   `yaml:"-"` // env-only
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	RefreshInterval Duration `yaml:"refresh_interval"`
	SyncBatchSize   int      `yaml:"sync_batch_size"`
	QueueRetention  Duration `yaml:"queue_retention"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("STOCKROOM_CONFIG_PATH", "config/stockroom.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/stockroom.db",
		},
		Remote: RemoteConfig{
			Timeout:  Duration(10 * time.Second),
			ClientID: defaultClientID(),
		},
		Mirror: MirrorConfig{
			Port: 8090,
		},
		Backup: BackupConfig{
			Dir:  "data/backups",
			Keep: 7,
			Storage: StorageConfig{
				Region:    "us-east-1",
				Prefix:    "stockroom",
				URLExpiry: Duration(15 * time.Minute),
			},
		},
		Worker: WorkerConfig{
			RefreshInterval: Duration(5 * time.Minute),
			SyncBatchSize:   100,
			QueueRetention:  Duration(7 * 24 * time.Hour),
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func defaultClientID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "stockroom"
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("STOCKROOM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	envDuration("STOCKROOM_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("STOCKROOM_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("STOCKROOM_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	if v := os.Getenv("STOCKROOM_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}

	// Database
	if v := os.Getenv("STOCKROOM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Remote
	if v := os.Getenv("STOCKROOM_REMOTE_URL"); v != "" {
		cfg.Remote.URL = v
	}
	if v := os.Getenv("STOCKROOM_REMOTE_API_KEY"); v != "" {
		cfg.Remote.APIKey = v
	}
	envDuration("STOCKROOM_REMOTE_TIMEOUT", &cfg.Remote.Timeout)
	if v := os.Getenv("STOCKROOM_CLIENT_ID"); v != "" {
		cfg.Remote.ClientID = v
	}

	// Mirror
	if v := os.Getenv("STOCKROOM_MIRROR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Mirror.Port = port
		}
	}
	if v := os.Getenv("STOCKROOM_MIRROR_API_KEY"); v != "" {
		cfg.Mirror.APIKey = v
	}

	// Backup
	if v := os.Getenv("STOCKROOM_BACKUP_DIR"); v != "" {
		cfg.Backup.Dir = v
	}
	envInt("STOCKROOM_BACKUP_KEEP", &cfg.Backup.Keep)
	if v := os.Getenv("STOCKROOM_S3_BUCKET"); v != "" {
		cfg.Backup.Storage.Bucket = v
	}
	if v := os.Getenv("STOCKROOM_S3_ENDPOINT"); v != "" {
		cfg.Backup.Storage.Endpoint = v
	}
	if v := os.Getenv("STOCKROOM_S3_REGION"); v != "" {
		cfg.Backup.Storage.Region = v
	}
	if v := os.Getenv("STOCKROOM_S3_PREFIX"); v != "" {
		cfg.Backup.Storage.Prefix = v
	}
	if v := os.Getenv("STOCKROOM_S3_ACCESS_KEY"); v != "" {
		cfg.Backup.Storage.AccessKey = v
	}
	if v := os.Getenv("STOCKROOM_S3_SECRET_KEY"); v != "" {
		cfg.Backup.Storage.SecretKey = v
	}
	if v := os.Getenv("STOCKROOM_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Backup.Storage.UseSSL = &useSSL
	}

	// Worker
	envDuration("STOCKROOM_REFRESH_INTERVAL", &cfg.Worker.RefreshInterval)
	envInt("STOCKROOM_SYNC_BATCH_SIZE", &cfg.Worker.SyncBatchSize)
	envDuration("STOCKROOM_QUEUE_RETENTION", &cfg.Worker.QueueRetention)

	// Log
	if v := os.Getenv("STOCKROOM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STOCKROOM_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STOCKROOM_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// validate checks configuration values that would otherwise fail late.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid remote url %q", c.Remote.URL)
		}
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log format must be json or text, got %q", c.Log.Format)
	}
	if c.Worker.RefreshInterval <= 0 {
		return errors.New("worker refresh_interval must be positive")
	}
	return nil
}

// SSL returns the effective SSL setting, defaulting to true.
func (s StorageConfig) SSL() bool {
	if s.UseSSL == nil {
		return true
	}
	return *s.UseSSL
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
