package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the server and CLI configuration
type Config struct {
	Server  Server  `toml:"server"`
	Storage Storage `toml:"storage"`
	Logging Logging `toml:"logging"`
}

// Server contains HTTP listener settings
type Server struct {
	Port        int      `toml:"port"`
	GinMode     string   `toml:"gin_mode"`
	CORSOrigins []string `toml:"cors_origins"`
	MaxUploadMB int64    `toml:"max_upload_mb"`
}

// Storage contains the project data directory settings
type Storage struct {
	DataDir       string `toml:"data_dir"`
	Watch         bool   `toml:"watch"`
	WatchDebounce int    `toml:"watch_debounce_ms"`
}

// Logging contains logger settings
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: Server{
			Port:        3000,
			GinMode:     "release",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			MaxUploadMB: 512,
		},
		Storage: Storage{
			DataDir:       "project-data",
			Watch:         true,
			WatchDebounce: 250,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the TOML file at path (if any) on top of the defaults and then
// applies environment overrides. A missing file is not an error when path is
// empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("TAPEDECK_CONFIG")
	}
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("config file %s not found", path)
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return errors.New("storage.data_dir is required")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q must be json or console", c.Logging.Format)
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}
