package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnv overrides file values with environment variables
func applyEnv(cfg *Config) {
	// SERVER_PORT wins over PORT, matching how the server has always resolved it
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if v := os.Getenv(key); v != "" {
			if port, err := strconv.Atoi(v); err == nil {
				cfg.Server.Port = port
			}
		}
	}

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		cfg.Server.GinMode = mode
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = splitList(origins)
	}

	if v := os.Getenv("TAPEDECK_MAX_UPLOAD_MB"); v != "" {
		if mb, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxUploadMB = mb
		}
	}

	if dir := GetDataDir(); dir != "" {
		cfg.Storage.DataDir = dir
	}

	if v := os.Getenv("TAPEDECK_WATCH"); v != "" {
		if watch, err := strconv.ParseBool(v); err == nil {
			cfg.Storage.Watch = watch
		}
	}

	if level := os.Getenv("TAPEDECK_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("TAPEDECK_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

// GetDataDir returns the data directory from the environment, if set
func GetDataDir() string {
	return os.Getenv("TAPEDECK_DATA_DIR")
}

// GetServerURL returns the API base URL the CLI talks to
func GetServerURL() string {
	if url := os.Getenv("TAPEDECK_SERVER"); url != "" {
		return strings.TrimRight(url, "/")
	}
	return "http://localhost:3000"
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
