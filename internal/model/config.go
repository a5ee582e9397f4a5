package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Backend drivers.
const (
	DriverREST     = "rest"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// demoPlaceholder marks a backend URL copied from the sample config.
const demoPlaceholder = "your_supabase"

// BackendConfig selects and configures the remote data gateway.
type BackendConfig struct {
	// Driver is one of "rest" (hosted backend), "sqlite" or "postgres"
	// (direct SQL access).
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=rest sqlite postgres"`

	// URL is the project URL of the hosted backend.
	URL string `mapstructure:"url" yaml:"url" validate:"omitempty,url"`

	// AnonKey is the public API key. When empty it is read from the
	// system keyring.
	AnonKey string `mapstructure:"anon_key" yaml:"anon_key"`

	// DSN is the database location for the sqlite and postgres drivers.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// UserID is the identity used by the direct SQL drivers, which have
	// no auth service of their own.
	UserID string `mapstructure:"user_id" yaml:"user_id"`

	// TimeoutSec bounds every remote call.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec" validate:"gte=1"`

	// RequestsPerSec paces outgoing REST calls.
	RequestsPerSec float64 `mapstructure:"requests_per_sec" yaml:"requests_per_sec" validate:"gt=0"`
}

// IsDemo reports whether the backend is unconfigured, in which case
// every gateway call short-circuits to an empty success.
func (b BackendConfig) IsDemo() bool {
	switch b.Driver {
	case DriverSQLite, DriverPostgres:
		return strings.TrimSpace(b.DSN) == ""
	default:
		url := strings.TrimSpace(b.URL)
		key := strings.TrimSpace(b.AnonKey)
		return url == "" || key == "" || strings.Contains(url, demoPlaceholder)
	}
}

// SyncConfig holds polling settings.
type SyncConfig struct {
	NotificationPollSec int `mapstructure:"notification_poll_sec" yaml:"notification_poll_sec" validate:"gte=1"`
	MessagePollSec      int `mapstructure:"message_poll_sec" yaml:"message_poll_sec" validate:"gte=1"`
	NotificationLimit   int `mapstructure:"notification_limit" yaml:"notification_limit" validate:"gte=1,lte=1000"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// LogConfig controls the log file. The terminal belongs to the UI, so
// logs never go to stderr while it runs.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json console"`
	File   string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig enables the optional Prometheus listener.
type MetricsConfig struct {
	// Listen is a host:port; empty disables the listener.
	Listen string `mapstructure:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

// DigestConfig describes where notification digests are delivered.
type DigestConfig struct {
	From     string `mapstructure:"from" yaml:"from" validate:"omitempty,email"`
	To       string `mapstructure:"to" yaml:"to" validate:"omitempty,email"`
	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort string `mapstructure:"imap_port" yaml:"imap_port"`
	Username string `mapstructure:"username" yaml:"username"`
	Mailbox  string `mapstructure:"mailbox" yaml:"mailbox"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Digest  DigestConfig  `mapstructure:"digest" yaml:"digest"`
}

// ConfigDir returns ~/.config/classroom.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "classroom")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/classroom/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Backend: BackendConfig{
			Driver:         DriverREST,
			TimeoutSec:     30,
			RequestsPerSec: 5,
		},
		Sync: SyncConfig{
			NotificationPollSec: 30,
			MessagePollSec:      5,
			NotificationLimit:   DefaultNotificationLimit,
		},
		Display: DisplayConfig{
			Theme: "default",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			File:   filepath.Join(ConfigDir(), "classroom.log"),
		},
		Digest: DigestConfig{
			IMAPPort: "993",
			Mailbox:  "INBOX",
			TLS:      true,
		},
	}
}

// newViper returns a viper instance with defaults and environment
// bindings for every known key.
func newViper() *viper.Viper {
	d := defaultAppConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("backend.driver", d.Backend.Driver)
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.anon_key", "")
	v.SetDefault("backend.dsn", "")
	v.SetDefault("backend.user_id", "")
	v.SetDefault("backend.timeout_sec", d.Backend.TimeoutSec)
	v.SetDefault("backend.requests_per_sec", d.Backend.RequestsPerSec)
	v.SetDefault("sync.notification_poll_sec", d.Sync.NotificationPollSec)
	v.SetDefault("sync.message_poll_sec", d.Sync.MessagePollSec)
	v.SetDefault("sync.notification_limit", d.Sync.NotificationLimit)
	v.SetDefault("display.theme", d.Display.Theme)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("digest.from", "")
	v.SetDefault("digest.to", "")
	v.SetDefault("digest.imap_host", "")
	v.SetDefault("digest.imap_port", d.Digest.IMAPPort)
	v.SetDefault("digest.username", "")
	v.SetDefault("digest.mailbox", d.Digest.Mailbox)
	v.SetDefault("digest.tls", d.Digest.TLS)

	v.SetEnvPrefix("classroom")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The hosted backend's own tooling exports these names.
	_ = v.BindEnv("backend.url", "CLASSROOM_BACKEND_URL", "SUPABASE_URL")
	_ = v.BindEnv("backend.anon_key", "CLASSROOM_BACKEND_ANON_KEY", "SUPABASE_ANON_KEY")

	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, defaults and environment overrides apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// ValidateConfig checks struct constraints on cfg.
func ValidateConfig(cfg *AppConfig) error {
	return validator.New().Struct(cfg)
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. The anon key is never written;
// it belongs in the keyring.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	backend := cfg.Backend
	backend.AnonKey = ""

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("backend", backend)
	v.Set("sync", cfg.Sync)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)
	v.Set("digest", cfg.Digest)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
