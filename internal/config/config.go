// Package config loads phptags settings from an optional TOML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/phobologic/phptags/internal/lexer"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = ".phptags.toml"

// Config holds the settings the command line can override.
type Config struct {
	Output    string   `toml:"output"`
	Recursive bool     `toml:"recursive"`
	CacheDir  string   `toml:"cache_dir"`
	NoCache   bool     `toml:"no_cache"`
	Match     []string `toml:"match"`
	Exclude   []string `toml:"exclude"`
	Gitignore bool     `toml:"gitignore"`
	Debounce  string   `toml:"debounce"`
}

// Default returns the built-in settings. An empty CacheDir means the
// per-user default root.
func Default() *Config {
	return &Config{
		Output:    "tags",
		Match:     append([]string(nil), lexer.Extensions...),
		Exclude:   []string{"**/.git", "app/cache"},
		Gitignore: true,
		Debounce:  "300ms",
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that cannot be checked by decoding alone.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Output) == "" {
		return errors.New("output must not be empty")
	}
	if _, err := time.ParseDuration(c.Debounce); err != nil {
		return fmt.Errorf("invalid debounce %q: %w", c.Debounce, err)
	}
	return nil
}

// DebounceDuration returns the watch debounce interval.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Debounce)
	if err != nil {
		return 300 * time.Millisecond
	}
	return d
}

// ResolveCacheDir returns CacheDir with a leading "~/" expanded, or def when
// CacheDir is empty.
func (c *Config) ResolveCacheDir(def string) (string, error) {
	dir := c.CacheDir
	if dir == "" {
		return def, nil
	}
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding cache_dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
