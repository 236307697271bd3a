package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// localEnv is the APP_ENV value for local development. Only local runs read
// a dotenv file; deployed environments get everything from the real
// environment.
const localEnv = "local"

// Load reads, populates, and validates the configuration.
//
// The loading sequence is:
//  1. Enforce UTC as the process timezone to prevent drift bugs — every
//     stored timestamp in the system is timezone-naive UTC.
//  2. Load a .env file via godotenv when APP_ENV is local or unset
//     (non-fatal if absent).
//  3. Process envconfig struct tags to populate Config.
//  4. Validate the struct with go-playground/validator (fail fast).
func Load() (*Config, error) {
	time.Local = time.UTC

	if env := os.Getenv("APP_ENV"); env == "" || env == localEnv {
		// Missing dotenv is fine; explicit env vars still apply.
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}
