// Package config loads and validates lappi settings from flags, LAPPI_
// environment variables, an optional .env file and a yaml config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/franz/lappi/internal/report"
	"github.com/franz/lappi/internal/store"
	"github.com/franz/lappi/internal/util"
)

// EnvPrefix prefixes every environment override, e.g. LAPPI_STORAGE_ROOT
const EnvPrefix = "LAPPI"

// Config is the full application configuration
type Config struct {
	DB      string        `mapstructure:"db"`
	TempDir string        `mapstructure:"temp_dir"`
	Storage StorageConfig `mapstructure:"storage"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Report  ReportConfig  `mapstructure:"report"`
	Verbose bool          `mapstructure:"verbose"`
	Quiet   bool          `mapstructure:"quiet"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DB, validation.Required),
		validation.Field(&c.TempDir, validation.Required),
	); err != nil {
		return err
	}
	if c.Verbose && c.Quiet {
		return errors.New("verbose and quiet are mutually exclusive")
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.Report.Validate(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// StorageConfig describes the storage root holding the collection's files.
//
// Persistent=false runs in ephemeral mode: paths are tracked in the database
// but nothing is written to disk.
type StorageConfig struct {
	Root       string `mapstructure:"root"`
	Persistent bool   `mapstructure:"persistent"`
}

// Validate validates the storage configuration
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.When(c.Persistent, validation.Required)),
	)
}

// RetryConfig overrides the retry policy for filesystem operations.
// Zero keeps the default, which depends on the storage root's mount.
type RetryConfig struct {
	Attempts int `mapstructure:"attempts"`
}

// Validate validates the retry configuration
func (c *RetryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Attempts, validation.Min(0), validation.Max(20)),
	)
}

// ReportConfig controls the migration event log
type ReportConfig struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level"`
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.Required, validation.In(
			string(report.LevelDebug), string(report.LevelInfo),
			string(report.LevelWarning), string(report.LevelError),
		)),
	)
}

// NewDefaultConfig returns a Config with default values
func NewDefaultConfig() *Config {
	return &Config{
		DB:      "lappi.db",
		TempDir: os.TempDir(),
		Storage: StorageConfig{
			Root:       "library",
			Persistent: true,
		},
		Report: ReportConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers the defaults with v so that config files and
// environment variables only need to name what they change
func SetDefaults(v *viper.Viper) {
	d := NewDefaultConfig()
	v.SetDefault("db", d.DB)
	v.SetDefault("temp_dir", d.TempDir)
	v.SetDefault("storage.root", d.Storage.Root)
	v.SetDefault("storage.persistent", d.Storage.Persistent)
	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("report.dir", d.Report.Dir)
	v.SetDefault("report.level", d.Report.Level)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("quiet", d.Quiet)
}

// BindEnv makes every key overridable through LAPPI_ variables
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the configuration from v and validates it
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// StoreOptions returns the open options for the database path
func (c *Config) StoreOptions() *store.OpenOptions {
	return &store.OpenOptions{
		NetworkOptimized: c.DB != store.MemoryPath && util.IsNetworkPath(c.DB),
	}
}

// RetryPolicy returns the retry policy for filesystem work under the
// storage root. Network mounts get the more patient NAS policy.
func (c *Config) RetryPolicy() *util.RetryConfig {
	policy := util.DefaultRetryConfig()
	if c.Storage.Persistent && util.IsNetworkPath(c.Storage.Root) {
		policy = util.NASRetryConfig()
	}
	if c.Retry.Attempts > 0 {
		policy.MaxAttempts = c.Retry.Attempts
	}
	return policy
}

// JournalPath returns where the migration journal named name is kept
func (c *Config) JournalPath(name string) string {
	return filepath.Join(c.TempDir, name)
}

// ApplyLogging sets the process log level from the verbose and quiet flags
func (c *Config) ApplyLogging() {
	util.SetVerbose(c.Verbose)
	util.SetQuiet(c.Quiet)
}
