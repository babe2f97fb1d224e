package logging

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names for logger configuration
const (
	EnvLogLevel    = "CLASSSYNC_LOG_LEVEL"
	EnvLogFormat   = "CLASSSYNC_LOG_FORMAT"
	EnvAddSource   = "CLASSSYNC_LOG_SOURCE"
	EnvEnvironment = "CLASSSYNC_ENV"
)

// ConfigFromEnv builds a logger configuration from environment variables,
// falling back to DefaultConfig values for anything unset.
func ConfigFromEnv() Config {
	config := DefaultConfig

	if level := strings.ToLower(os.Getenv(EnvLogLevel)); level != "" {
		switch level {
		case "debug", "info", "warn", "error":
			config.Level = level
		}
	}

	if format := strings.ToLower(os.Getenv(EnvLogFormat)); format != "" {
		switch format {
		case "text", "json":
			config.Format = format
		}
	}

	if src := os.Getenv(EnvAddSource); src != "" {
		if parsed, err := strconv.ParseBool(src); err == nil {
			config.AddSource = parsed
		}
	}

	if env := strings.ToLower(os.Getenv(EnvEnvironment)); env != "" {
		switch env {
		case "dev", "prod", "test":
			config.Environment = env
		}
	}

	return config
}
