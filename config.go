package main

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/CrowderSoup/tasklist/store"
)

// Config holds the full server configuration. Values come from
// tasklist.toml when present, then environment variables override.
type Config struct {
	Port        string `toml:"port"`
	Backend     string `toml:"backend"`
	DataDir     string `toml:"data_dir"`
	SQLitePath  string `toml:"sqlite_path"`
	SlowQueryMS int    `toml:"slow_query_ms"`

	RetryAttempts int  `toml:"retry_attempts"`
	RetryBaseMS   int  `toml:"retry_base_ms"`
	RetryWrites   bool `toml:"retry_writes"`

	LogLevel string `toml:"log_level"`
}

// LoadConfig builds the configuration from defaults, an optional
// tasklist.toml, and environment variables, in that precedence order.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:          "3001",
		Backend:       "sqlite",
		DataDir:       "./data",
		SlowQueryMS:   200,
		RetryAttempts: 3,
		RetryBaseMS:   50,
		LogLevel:      "info",
	}

	if _, err := os.Stat("tasklist.toml"); err == nil {
		if _, err := toml.DecodeFile("tasklist.toml", cfg); err != nil {
			return nil, err
		}
	}

	overrideString(&cfg.Port, "PORT")
	overrideString(&cfg.Backend, "TASKLIST_BACKEND")
	overrideString(&cfg.DataDir, "TASKLIST_DATA_DIR")
	overrideString(&cfg.SQLitePath, "TASKLIST_SQLITE_PATH")
	overrideString(&cfg.LogLevel, "TASKLIST_LOG_LEVEL")
	overrideInt(&cfg.SlowQueryMS, "TASKLIST_SLOW_QUERY_MS")
	overrideInt(&cfg.RetryAttempts, "TASKLIST_RETRY_ATTEMPTS")
	overrideInt(&cfg.RetryBaseMS, "TASKLIST_RETRY_BASE_MS")
	overrideBool(&cfg.RetryWrites, "TASKLIST_RETRY_WRITES")

	return cfg, nil
}

// StoreConfig translates the server configuration into the store's.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Backend:            c.Backend,
		DataDir:            c.DataDir,
		SQLitePath:         c.SQLitePath,
		SlowQueryThreshold: time.Duration(c.SlowQueryMS) * time.Millisecond,
		Retry: store.RetryPolicy{
			MaxAttempts: c.RetryAttempts,
			BaseDelay:   time.Duration(c.RetryBaseMS) * time.Millisecond,
			RetryWrites: c.RetryWrites,
		},
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// LoadEnv loads environment variables from a .env file
func LoadEnv(filename string) error {
	// Open the .env file
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	// Read the file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()

		// Skip empty lines and comments
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		// Split on the first equals sign
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue // Skip malformed lines
		}

		// Trim spaces and optional quotes from the value
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Set the environment variable
		os.Setenv(key, value)
	}

	// Check for scanner errors
	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}
