// Package config provides configuration management for ledger-companion.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	API    APIConfig
	Ledger LedgerConfig
	Export ExportConfig
	DBPath string
	Debug  bool
}

// APIConfig represents the backend endpoints.
type APIConfig struct {
	URL       string
	SocketURL string
	Timeout   time.Duration
}

// LedgerConfig represents ledger display settings.
type LedgerConfig struct {
	PageSize int
	Location *time.Location
}

// ExportConfig represents Beancount export settings.
type ExportConfig struct {
	Root           string
	AccountMapping string
}

// Defaults.
const (
	DefaultAPIURL   = "http://localhost:8080"
	DefaultDBPath   = "./data/ledger.db"
	DefaultTimeout  = 30 * time.Second
	DefaultPageSize = 10
)

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	timeout, err := parseDurationEnv("LEDGER_TIMEOUT", DefaultTimeout)
	if err != nil {
		return nil, err
	}

	pageSize, err := parseIntEnv("LEDGER_PAGE_SIZE", DefaultPageSize)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("invalid LEDGER_PAGE_SIZE: must be positive, got %d", pageSize)
	}

	loc := time.Local
	if name := os.Getenv("LEDGER_TIMEZONE"); name != "" {
		if loc, err = time.LoadLocation(name); err != nil {
			return nil, fmt.Errorf("invalid LEDGER_TIMEZONE: %w", err)
		}
	}

	apiURL := strings.TrimSuffix(getEnvOrDefault("LEDGER_API_URL", DefaultAPIURL), "/")

	config := &Config{
		API: APIConfig{
			URL:       apiURL,
			SocketURL: getEnvOrDefault("LEDGER_SOCKET_URL", socketURL(apiURL)),
			Timeout:   timeout,
		},
		Ledger: LedgerConfig{
			PageSize: pageSize,
			Location: loc,
		},
		Export: ExportConfig{
			Root:           getEnvOrDefault("LEDGER_EXPORT_ROOT", "./beancount"),
			AccountMapping: os.Getenv("LEDGER_ACCOUNT_MAPPING"),
		},
		DBPath: getEnvOrDefault("LEDGER_DB_PATH", DefaultDBPath),
		Debug:  os.Getenv("DEBUG") == "true",
	}

	return config, nil
}

// Validate validates the configuration.
// It checks if all required fields are set and reports every missing one.
func (c *Config) Validate(required ...[]string) error {
	var missing []string

	for _, path := range required {
		if len(path) < 2 {
			continue
		}

		var value string
		switch path[0] {
		case "api":
			switch path[1] {
			case "url":
				value = c.API.URL
			case "socketUrl":
				value = c.API.SocketURL
			}
		case "export":
			switch path[1] {
			case "root":
				value = c.Export.Root
			case "accountMapping":
				value = c.Export.AccountMapping
			}
		case "db":
			if path[1] == "path" {
				value = c.DBPath
			}
		}

		if value == "" {
			missing = append(missing, strings.Join(path, "."))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// socketURL derives the event channel URL from the API URL.
func socketURL(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://") + "/socket"
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://") + "/socket"
	}
	return ""
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an int from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return parsed, nil
}

// parseDurationEnv parses a duration such as "15s" or a plain number of
// seconds.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}
	return parsed, nil
}
