package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/franz/lappi/internal/util"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := NewDefaultConfig()
	if *cfg != *want {
		t.Errorf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lappi.yaml")
	yaml := strings.Join([]string{
		"db: /data/lappi.db",
		"storage:",
		"  root: /data/music",
		"  persistent: false",
		"retry:",
		"  attempts: 7",
		"report:",
		"  level: warning",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DB != "/data/lappi.db" || cfg.Storage.Root != "/data/music" || cfg.Storage.Persistent {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Retry.Attempts != 7 || cfg.Report.Level != "warning" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.TempDir != os.TempDir() {
		t.Errorf("TempDir = %q, want default", cfg.TempDir)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LAPPI_STORAGE_ROOT", "/env/music")
	t.Setenv("LAPPI_RETRY_ATTEMPTS", "2")

	v := viper.New()
	BindEnv(v)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Root != "/env/music" {
		t.Errorf("Storage.Root = %q", cfg.Storage.Root)
	}
	if cfg.Retry.Attempts != 2 {
		t.Errorf("Retry.Attempts = %d", cfg.Retry.Attempts)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LAPPI_DB=/dotenv/lappi.db\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LAPPI_DB", "")
	os.Unsetenv("LAPPI_DB")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	v := viper.New()
	BindEnv(v)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB != "/dotenv/lappi.db" {
		t.Errorf("DB = %q", cfg.DB)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"no db", func(c *Config) { c.DB = "" }, false},
		{"no temp dir", func(c *Config) { c.TempDir = "" }, false},
		{"persistent without root", func(c *Config) { c.Storage.Root = "" }, false},
		{"ephemeral without root", func(c *Config) {
			c.Storage.Root = ""
			c.Storage.Persistent = false
		}, true},
		{"negative attempts", func(c *Config) { c.Retry.Attempts = -1 }, false},
		{"too many attempts", func(c *Config) { c.Retry.Attempts = 100 }, false},
		{"bad report level", func(c *Config) { c.Report.Level = "loud" }, false},
		{"verbose and quiet", func(c *Config) {
			c.Verbose = true
			c.Quiet = true
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewDefaultConfig()
			tt.modify(c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	v := viper.New()
	v.Set("report.level", "loud")
	if _, err := Load(v); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestRetryPolicy(t *testing.T) {
	c := NewDefaultConfig()
	c.Storage.Root = t.TempDir()
	if got := c.RetryPolicy().MaxAttempts; got != util.DefaultRetryConfig().MaxAttempts {
		t.Errorf("MaxAttempts = %d, want default", got)
	}
	c.Retry.Attempts = 9
	if got := c.RetryPolicy().MaxAttempts; got != 9 {
		t.Errorf("MaxAttempts = %d, want 9", got)
	}
}

func TestJournalPath(t *testing.T) {
	c := NewDefaultConfig()
	c.TempDir = "/var/tmp"
	if got := c.JournalPath("j.jsonl"); got != "/var/tmp/j.jsonl" {
		t.Errorf("JournalPath = %q", got)
	}
}
