package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/corpeningc/catsync/internal/logging"
)

const (
	// FileName is the per-repository config file looked up in the repo root.
	FileName  = ".catsync.yaml"
	EnvPrefix = "CATSYNC"
)

// CatalogFile describes one tracked catalog document.
type CatalogFile struct {
	Path      string `mapstructure:"path"`
	Entity    string `mapstructure:"entity"`
	NameField string `mapstructure:"name_field"`
}

type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

type PublishConfig struct {
	MaxPushAttempts int `mapstructure:"max_push_attempts"`
}

type Config struct {
	Remote  string         `mapstructure:"remote"`
	Branch  string         `mapstructure:"branch"`
	Catalog []CatalogFile  `mapstructure:"catalog"`
	Retry   RetryConfig    `mapstructure:"retry"`
	Publish PublishConfig  `mapstructure:"publish"`
	Log     logging.Config `mapstructure:"log"`
}

// DefaultCatalog is used when no catalog files are configured.
var DefaultCatalog = []CatalogFile{
	{Path: "products.json", Entity: "product", NameField: "name"},
	{Path: "coupons.json", Entity: "coupon", NameField: "code"},
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Remote:  "origin",
		Catalog: append([]CatalogFile(nil), DefaultCatalog...),
		Retry:   RetryConfig{Attempts: 3, Backoff: 500 * time.Millisecond},
		Publish: PublishConfig{MaxPushAttempts: 3},
		Log:     logging.DefaultConfig,
	}
}

// New creates a viper instance with defaults and environment binding.
// Precedence: env (CATSYNC_*) > explicit/config file > defaults.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("remote", d.Remote)
	v.SetDefault("branch", d.Branch)
	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.backoff", d.Retry.Backoff.String())
	v.SetDefault("publish.max_push_attempts", d.Publish.MaxPushAttempts)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	return v
}

// Load reads configuration for the repository at repoDir. An explicit
// configFile wins over the lookup of .catsync.yaml in the repo root and
// then the user config directory.
func Load(v *viper.Viper, repoDir, configFile string) (Config, error) {
	if configFile == "" {
		configFile = locate(repoDir)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return normalize(cfg)
}

func locate(repoDir string) string {
	candidates := []string{filepath.Join(repoDir, FileName)}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "catsync", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func normalize(cfg Config) (Config, error) {
	d := Default()
	if cfg.Remote == "" {
		cfg.Remote = d.Remote
	}
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = d.Catalog
	}
	if cfg.Retry.Attempts < 1 {
		cfg.Retry.Attempts = 1
	}
	if cfg.Retry.Backoff < 0 {
		return Config{}, fmt.Errorf("retry.backoff must not be negative, got %s", cfg.Retry.Backoff)
	}
	if cfg.Publish.MaxPushAttempts < 1 {
		cfg.Publish.MaxPushAttempts = 1
	}

	seen := make(map[string]bool)
	for i, f := range cfg.Catalog {
		if f.Path == "" {
			return Config{}, fmt.Errorf("catalog entry %d has no path", i)
		}
		f.Path = filepath.ToSlash(filepath.Clean(f.Path))
		if seen[f.Path] {
			return Config{}, fmt.Errorf("catalog file %s listed twice", f.Path)
		}
		seen[f.Path] = true
		if f.Entity == "" {
			f.Entity = strings.TrimSuffix(strings.TrimSuffix(filepath.Base(f.Path), ".json"), "s")
		}
		if f.NameField == "" {
			f.NameField = "name"
		}
		cfg.Catalog[i] = f
	}
	return cfg, nil
}
