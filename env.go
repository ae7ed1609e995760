package cachemaster

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/goforj/cachemaster/cachecore"
	"github.com/joho/godotenv"
)

// Environment variables read by LoadEnvConfig.
const (
	EnvAppName      = "CACHE_APP_NAME"
	EnvBackend      = "CACHE_BACKEND"
	EnvRemoteURL    = "CACHE_REMOTE_URL"
	EnvMaxKeyLength = "CACHE_MAX_KEY_LENGTH"
)

// LoadEnvConfig loads the given dotenv files (".env" when none are given)
// and builds a Config from the process environment. Missing files are
// ignored; variables already set in the environment win over file values.
func LoadEnvConfig(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: load env files: %w", ErrConfiguration, err)
	}

	backend, err := cachecore.ParseBackend(getEnv(EnvBackend, ""))
	if err != nil {
		return Config{}, err
	}
	maxLen, err := getIntEnv(EnvMaxKeyLength, 0)
	if err != nil {
		return Config{}, err
	}
	return Config{
		AppName:      getEnv(EnvAppName, cachecore.DefaultPrefix),
		Backend:      backend,
		RemoteURL:    getEnv(EnvRemoteURL, ""),
		MaxKeyLength: maxLen,
	}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrConfiguration, key, value)
	}
	return n, nil
}
