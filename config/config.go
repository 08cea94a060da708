package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"
)

// Config represents the application configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	PubSub   PubSubConfig   `yaml:"pubsub"`
	Scanner  ScannerConfig  `yaml:"scanner"`
	Devices  DevicesConfig  `yaml:"devices"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig contains the HTTP listener configuration
type HTTPConfig struct {
	Port                string `yaml:"port" env:"HTTPPORT" env-default:"8080"`
	PayloadPreviewChars int    `yaml:"payloadPreviewChars" env:"LOG_PAYLOAD_PREVIEW_CHARS" env-default:"32"`
}

// DatabaseConfig contains the Cloud SQL Postgres configuration
type DatabaseConfig struct {
	User      string `yaml:"user" env:"DB_USER"`
	Password  string `yaml:"password" env:"DB_PASSWORD"`
	Name      string `yaml:"name" env:"DB_NAME"`
	Instance  string `yaml:"instanceConnectionName" env:"INSTANCE_CONNECTION_NAME"`
	PrivateIP bool   `yaml:"privateIP" env:"PRIVATE_IP" env-default:"false"`
	MaxConns  int32  `yaml:"maxConns" env:"DB_MAX_CONNS" env-default:"10"`
}

// PubSubConfig contains the callback topic configuration. Publishing is
// disabled when ProjectID or Topic is empty.
type PubSubConfig struct {
	ProjectID string `yaml:"projectID" env:"GCP_PROJECT_ID"`
	Topic     string `yaml:"callbackTopic" env:"CALLBACK_TOPIC"`
	Ordering  bool   `yaml:"ordering" env:"CALLBACK_ORDERING" env-default:"false"`
}

// ScannerConfig contains local BLE scanning configuration
type ScannerConfig struct {
	Enabled      bool     `yaml:"enabled" env:"BLE_SCAN_ENABLED" env-default:"false"`
	MACAddresses []string `yaml:"macAddresses" env:"BLE_SCAN_MACS" env-separator:","`
	NameContains []string `yaml:"nameContains" env:"BLE_SCAN_NAMES" env-separator:","`
}

// DevicesConfig contains the device list retention configuration
type DevicesConfig struct {
	PruneSchedule string        `yaml:"pruneSchedule" env:"DEVICE_PRUNE_SCHEDULE" env-default:"@every 1m"`
	MaxAge        time.Duration `yaml:"maxAge" env:"DEVICE_MAX_AGE" env-default:"10m"`
}

var macAddressRegex = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

// Load reads configuration from the environment. When configPath is not
// empty the YAML file is read first and the environment overrides it.
func Load(configPath string) (*Config, error) {
	var cfg Config

	var err error
	if configPath != "" {
		err = cleanenv.ReadConfig(configPath, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	db := c.Database
	if db.User == "" || db.Password == "" || db.Name == "" || db.Instance == "" {
		return fmt.Errorf("missing database settings (DB_USER/DB_PASSWORD/DB_NAME/INSTANCE_CONNECTION_NAME)")
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("database max conns must be at least 1, got %d", db.MaxConns)
	}

	if c.HTTP.Port == "" {
		return fmt.Errorf("http port is required")
	}

	for i, mac := range c.Scanner.MACAddresses {
		mac = strings.TrimSpace(mac)
		if !macAddressRegex.MatchString(mac) {
			return fmt.Errorf("scanner mac %d: invalid MAC address format: %s (expected format: XX:XX:XX:XX:XX:XX)", i, mac)
		}
		c.Scanner.MACAddresses[i] = strings.ToUpper(mac)
	}

	if c.Devices.MaxAge < time.Second {
		return fmt.Errorf("device max age must be at least 1s, got %s", c.Devices.MaxAge)
	}
	if strings.TrimSpace(c.Devices.PruneSchedule) == "" {
		return fmt.Errorf("device prune schedule is required")
	}

	return ValidateLogging(&c.Logging)
}

// PubSubEnabled reports whether callback publishing is configured.
func (c *Config) PubSubEnabled() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.Topic != ""
}

// NewLogger builds the zap logger described by the logging section
func (c *Config) NewLogger() (*zap.Logger, error) {
	return NewLogger(&c.Logging)
}

// PrintConfig prints the configuration (masking sensitive fields)
func (c *Config) PrintConfig(logger *zap.Logger) {
	logger.Info("configuration loaded",
		zap.String("http_port", c.HTTP.Port),
		zap.Int("payload_preview_chars", c.HTTP.PayloadPreviewChars),
		zap.String("db_user", c.Database.User),
		zap.Bool("db_password_set", c.Database.Password != ""),
		zap.String("db_name", c.Database.Name),
		zap.String("db_instance", c.Database.Instance),
		zap.Bool("db_private_ip", c.Database.PrivateIP),
		zap.Int32("db_max_conns", c.Database.MaxConns),
		zap.Bool("pubsub_enabled", c.PubSubEnabled()),
		zap.String("pubsub_project", c.PubSub.ProjectID),
		zap.String("pubsub_topic", c.PubSub.Topic),
		zap.Bool("pubsub_ordering", c.PubSub.Ordering),
		zap.Bool("scanner_enabled", c.Scanner.Enabled),
		zap.Strings("scanner_macs", c.Scanner.MACAddresses),
		zap.Strings("scanner_names", c.Scanner.NameContains),
		zap.String("device_prune_schedule", c.Devices.PruneSchedule),
		zap.Duration("device_max_age", c.Devices.MaxAge),
		zap.String("log_format", c.Logging.Format),
		zap.String("log_level", c.Logging.Level),
	)
}
