// Package config manages xs configuration: where the store lives and how
// new frames and blobs are written. The file is optional TOML; every key has
// a default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/kilupskalvis/xs/internal/cas"
	"github.com/kilupskalvis/xs/internal/index"
	"github.com/kilupskalvis/xs/internal/integrity"
	"github.com/pelletier/go-toml/v2"
)

const (
	AppDir     = "xs"
	ConfigFile = "config.toml"

	EnvConfig = "XS_CONFIG"
	EnvStore  = "XS_STORE"
)

// ErrInvalid is returned when a configuration value cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the xs configuration
type Config struct {
	Store         string `toml:"store"`
	IndexBackend  string `toml:"index_backend"`
	HashAlgorithm string `toml:"hash_algorithm"`
	Compression   string `toml:"compression"`
	MaxFrameSize  string `toml:"max_frame_size"` // e.g. "64MiB"; "0" means unlimited
	ScanPageSize  int    `toml:"scan_page_size"`
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Store:         DefaultStorePath(),
		IndexBackend:  string(index.BackendBolt),
		HashAlgorithm: string(integrity.DefaultAlgorithm),
		Compression:   string(cas.CompressionNone),
		MaxFrameSize:  "0",
		ScanPageSize:  index.DefaultPageSize,
		LogLevel:      "warn",
		LogFormat:     "console",
	}
}

// DefaultPath returns $XS_CONFIG, or config.toml in the user config dir.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ConfigFile
	}
	return filepath.Join(dir, AppDir, ConfigFile)
}

// DefaultStorePath returns $XS_STORE, or xs under the XDG data directory.
func DefaultStorePath() string {
	if p := os.Getenv(EnvStore); p != "" {
		return p
	}
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, AppDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppDir
	}
	return filepath.Join(home, ".local", "share", AppDir)
}

// Load reads the file at path over the defaults. A missing file is only an
// error when required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as TOML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Marshal renders the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Validate checks every value that is parsed later.
func (c *Config) Validate() error {
	if c.Store == "" {
		return fmt.Errorf("%w: store path is empty", ErrInvalid)
	}
	if _, err := c.Backend(); err != nil {
		return err
	}
	if _, err := c.Algorithm(); err != nil {
		return err
	}
	if _, err := c.CompressionMode(); err != nil {
		return err
	}
	if _, err := c.MaxFrameBytes(); err != nil {
		return err
	}
	if c.ScanPageSize < 0 {
		return fmt.Errorf("%w: scan_page_size must not be negative", ErrInvalid)
	}
	return nil
}

// Backend returns the configured index backend.
func (c *Config) Backend() (index.Backend, error) {
	b, err := index.ParseBackend(c.IndexBackend)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return b, nil
}

// Algorithm returns the digest algorithm for new blobs.
func (c *Config) Algorithm() (integrity.Algorithm, error) {
	if c.HashAlgorithm == "" {
		return integrity.DefaultAlgorithm, nil
	}
	alg, err := integrity.ParseAlgorithm(c.HashAlgorithm)
	if err != nil {
		return "", fmt.Errorf("%w: hash_algorithm: %w", ErrInvalid, err)
	}
	return alg, nil
}

// CompressionMode returns the at-rest compression for new blobs.
func (c *Config) CompressionMode() (cas.Compression, error) {
	comp, err := cas.ParseCompression(c.Compression)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return comp, nil
}

// MaxFrameBytes parses max_frame_size. Zero means unlimited.
func (c *Config) MaxFrameBytes() (int64, error) {
	if c.MaxFrameSize == "" || c.MaxFrameSize == "0" {
		return 0, nil
	}
	n, err := units.RAMInBytes(c.MaxFrameSize)
	if err != nil {
		return 0, fmt.Errorf("%w: max_frame_size %q: %w", ErrInvalid, c.MaxFrameSize, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: max_frame_size must not be negative", ErrInvalid)
	}
	return n, nil
}
