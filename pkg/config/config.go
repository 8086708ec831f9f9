// Package config handles minic.toml host configuration and the .env
// overrides that carry secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"minic/pkg/limits"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	FileName = "minic.toml"
	EnvFile  = ".env"

	// MaxSourceSize is the largest script a host accepts, in bytes.
	MaxSourceSize = 4096
)

var ErrSourceTooLarge = fmt.Errorf("source exceeds %d bytes", MaxSourceSize)

// Config represents a minic.toml host configuration.
type Config struct {
	Limits  limits.Limits `toml:"limits"`
	Device  Device        `toml:"device"`
	Console Console       `toml:"console"`
	Log     Log           `toml:"log"`

	// Dir is the directory the configuration was loaded from.
	Dir string `toml:"-"`
}

type Device struct {
	// FSRoot sandboxes fs_read and fs_write. Empty disables the filesystem.
	FSRoot      string `toml:"fs_root"`
	VirtualTime bool   `toml:"virtual_time"`
}

type Console struct {
	Listen       string `toml:"listen"`
	PasswordHash string `toml:"password_hash"`
	TokenTTL     string `toml:"token_ttl"`
	// MaxSteps bounds every console run; scripts cannot be interrupted.
	MaxSteps int `toml:"max_steps"`

	// Secret signs session tokens. It is only read from the environment.
	Secret string `toml:"-"`
}

type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

func Default() *Config {
	return &Config{
		Limits: limits.Default(),
		Console: Console{
			Listen:   "127.0.0.1:8023",
			TokenTTL: "1h",
			MaxSteps: 1_000_000,
		},
	}
}

// Load reads dir/minic.toml and dir/.env. Both are optional; values from
// the process environment win over .env, which wins over the TOML file.
func Load(dir string) (*Config, error) {
	c := Default()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	c.Dir = abs

	path := filepath.Join(abs, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	env, err := readEnv(filepath.Join(abs, EnvFile))
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := env[key]
		return v, ok
	}); err != nil {
		return nil, err
	}

	if c.Device.FSRoot != "" && !filepath.IsAbs(c.Device.FSRoot) {
		c.Device.FSRoot = filepath.Join(abs, c.Device.FSRoot)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func readEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return env, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("MINIC_FS_ROOT"); ok {
		c.Device.FSRoot = v
	}
	if v, ok := lookup("MINIC_CONSOLE_LISTEN"); ok {
		c.Console.Listen = v
	}
	if v, ok := lookup("MINIC_CONSOLE_SECRET"); ok {
		c.Console.Secret = v
	}
	if v, ok := lookup("MINIC_CONSOLE_PASSWORD_HASH"); ok {
		c.Console.PasswordHash = v
	}
	if v, ok := lookup("MINIC_LOG_VERBOSITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MINIC_LOG_VERBOSITY: %w", err)
		}
		c.Log.Verbosity = n
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if _, err := c.TokenDuration(); err != nil {
		return err
	}
	if c.Console.MaxSteps < 0 {
		return fmt.Errorf("console: max_steps must not be negative")
	}
	return nil
}

func (c *Config) TokenDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Console.TokenTTL)
	if err != nil {
		return 0, fmt.Errorf("console: invalid token_ttl: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("console: token_ttl must be positive")
	}
	return d, nil
}

// CheckSource enforces MaxSourceSize.
func CheckSource(src []byte) error {
	if len(src) > MaxSourceSize {
		return fmt.Errorf("%w (got %d)", ErrSourceTooLarge, len(src))
	}
	return nil
}
