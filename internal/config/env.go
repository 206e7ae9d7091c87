package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the tool reads.
const EnvPrefix = "LOGINRAMP_"

// DefaultEnvFiles are loaded when Load is given no env files.
var DefaultEnvFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads the files that exist into the process environment and
// returns how many were found. Variables already set are not overwritten.
func LoadEnvFiles(files []string) (int, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}

	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// LoadFromEnv overlays LOGINRAMP_* environment variables onto cfg. Unset
// variables leave the current values alone.
func LoadFromEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
