package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Telegram TelegramConfig
	Drive    DriveConfig
	Google   GoogleConfig
	Logging  LogConfig
	HTTP     HTTPConfig
	Session  SessionConfig
}

// TelegramConfig holds bot transport configuration.
type TelegramConfig struct {
	Token            string `envconfig:"TELEGRAM_TOKEN"`
	AuthorizedUserID int64  `envconfig:"AUTHORIZED_USER_ID"`
}

// DriveConfig holds remote store configuration.
type DriveConfig struct {
	RootFolderID      string  `envconfig:"DRIVE_ROOT_FOLDER_ID"`
	RequestsPerSecond float64 `envconfig:"DRIVE_RPS" default:"5"`
	ListPageSize      int     `envconfig:"DRIVE_PAGE_SIZE" default:"20"`
}

// GoogleConfig holds the delegated credential for the Drive API.
// TokenJSON takes precedence over TokenFile when both are set.
type GoogleConfig struct {
	TokenJSON string `envconfig:"GOOGLE_TOKEN_JSON"`
	TokenFile string `envconfig:"GOOGLE_TOKEN_FILE" default:"token.json"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// HTTPConfig holds the health/metrics endpoint configuration.
type HTTPConfig struct {
	Addr    string `envconfig:"HTTP_ADDR" default:":8080"`
	Enabled bool   `envconfig:"HTTP_ENABLED" default:"true"`
}

// SessionConfig holds upload session configuration.
// Timeout of zero disables the idle-session reaper.
type SessionConfig struct {
	Timeout    time.Duration `envconfig:"SESSION_TIMEOUT" default:"0"`
	StagingDir string        `envconfig:"STAGING_DIR"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all required values are present.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
	}
	if c.Telegram.AuthorizedUserID == 0 {
		errs = append(errs, errors.New("AUTHORIZED_USER_ID is required"))
	}
	if c.Drive.RootFolderID == "" {
		errs = append(errs, errors.New("DRIVE_ROOT_FOLDER_ID is required"))
	}
	if c.Google.TokenJSON == "" && c.Google.TokenFile == "" {
		errs = append(errs, errors.New("one of GOOGLE_TOKEN_JSON or GOOGLE_TOKEN_FILE is required"))
	}
	if c.Drive.ListPageSize <= 0 {
		errs = append(errs, errors.New("DRIVE_PAGE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}
