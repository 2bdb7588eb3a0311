// Package config loads graft.toml with GRAFT_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/chazu/graft/codesource"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "graft.toml"

// EnvPrefix prefixes environment overrides: GRAFT_MODS_DIR, GRAFT_ENTRY...
const EnvPrefix = "GRAFT"

var ErrInvalid = errors.New("config: invalid configuration")

// Config is the resolved configuration of one run.
type Config struct {
	// Host is the host archive.
	Host string `mapstructure:"host"`
	// ModsDir holds the mod archives.
	ModsDir string `mapstructure:"mods_dir"`
	// LoadOrder is an optional load-order list file; List selects a list
	// in it (empty: the file's default).
	LoadOrder string `mapstructure:"load_order"`
	List      string `mapstructure:"list"`
	// Deny extends codesource.DefaultDenylist.
	Deny []string `mapstructure:"deny"`
	// Entry is the host entry point, "pkg.Class.method".
	Entry string `mapstructure:"entry"`
	// Output is the directory merged archives are written to.
	Output    string `mapstructure:"output"`
	CacheSize int    `mapstructure:"cache_size"`
	Verbosity int    `mapstructure:"verbosity"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ModsDir:   "mods",
		Output:    "dist",
		CacheSize: codesource.DefaultCacheSize,
	}
}

// Load reads path, or graft.toml in the working directory when path is
// empty. A missing default file is not an error. Environment variables
// override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults := Default()
	v.SetDefault("host", defaults.Host)
	v.SetDefault("mods_dir", defaults.ModsDir)
	v.SetDefault("load_order", defaults.LoadOrder)
	v.SetDefault("list", defaults.List)
	v.SetDefault("deny", []string{})
	v.SetDefault("entry", defaults.Entry)
	v.SetDefault("output", defaults.Output)
	v.SetDefault("cache_size", defaults.CacheSize)
	v.SetDefault("verbosity", defaults.Verbosity)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", describe(path), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.File != "" {
		cfg.resolvePaths(filepath.Dir(cfg.File))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func describe(path string) string {
	if path == "" {
		return FileName
	}
	return path
}

// resolvePaths makes relative paths relative to the configuration file.
func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{&c.Host, &c.ModsDir, &c.LoadOrder, &c.Output} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate checks value ranges. Required fields are checked by the
// commands that need them.
func (c *Config) Validate() error {
	if c.CacheSize < 0 {
		return fmt.Errorf("%w: cache_size %d", ErrInvalid, c.CacheSize)
	}
	if c.Entry != "" {
		dot := strings.LastIndexByte(c.Entry, '.')
		if dot <= 0 || dot == len(c.Entry)-1 {
			return fmt.Errorf("%w: entry %q is not pkg.Class.method", ErrInvalid, c.Entry)
		}
	}
	if c.List != "" && c.LoadOrder == "" {
		return fmt.Errorf("%w: list %q set without load_order", ErrInvalid, c.List)
	}
	return nil
}

// Denylist returns the complete denylist: defaults plus Deny.
func (c *Config) Denylist() []string {
	out := append([]string(nil), codesource.DefaultDenylist...)
	for _, d := range c.Deny {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}
