package cachemaster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goforj/cachemaster/cachecore"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := (Config{}).withDefaults()

	if cfg.AppName != cachecore.DefaultPrefix {
		t.Fatalf("unexpected app name: %q", cfg.AppName)
	}
	if cfg.Backend != BackendLocal {
		t.Fatalf("unexpected backend: %s", cfg.Backend)
	}
	if cfg.MaxKeyLength != cachecore.DefaultMaxKeyLength {
		t.Fatalf("unexpected max key length: %d", cfg.MaxKeyLength)
	}
	if cfg.Logger == nil {
		t.Fatalf("expected default logger")
	}
}

func TestConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := (Config{AppName: "shop", Backend: BackendRemote, MaxKeyLength: 64}).withDefaults()

	if cfg.AppName != "shop" || cfg.Backend != BackendRemote || cfg.MaxKeyLength != 64 {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Backend: BackendLocal}).validate(); err != nil {
		t.Fatalf("local config should be valid: %v", err)
	}
	err := (Config{Backend: BackendRemote}).validate()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing url, got %v", err)
	}
	if !strings.Contains(err.Error(), "remote URL is missing; pass RemoteURL") {
		t.Fatalf("unexpected message: %v", err)
	}
	if err := (Config{Backend: BackendRemote, RemoteURL: "redis://x"}).validate(); err != nil {
		t.Fatalf("remote config with url should be valid: %v", err)
	}
	if err := (Config{Backend: "disk"}).validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for unknown backend, got %v", err)
	}
}

func TestOptionsOverrideConfig(t *testing.T) {
	logger := NopLogger{}
	obs := ObserverFunc(nil)
	cfg := applyOptions(Config{AppName: "base"}, []Option{
		WithAppName("shop"),
		WithBackend(BackendRemote),
		WithRemoteURL("redis://127.0.0.1:6379/0"),
		WithMaxKeyLength(128),
		WithLogger(logger),
		WithObserver(obs),
		nil,
	})

	if cfg.AppName != "shop" || cfg.Backend != BackendRemote || cfg.RemoteURL != "redis://127.0.0.1:6379/0" || cfg.MaxKeyLength != 128 {
		t.Fatalf("options not applied: %+v", cfg)
	}
	if cfg.Logger == nil || cfg.Observer == nil {
		t.Fatalf("expected logger and observer set")
	}
}

func TestNewRejectsInvalidAppName(t *testing.T) {
	if _, err := NewWith(context.Background(), WithAppName("a:b")); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestLoadEnvConfigFromFile(t *testing.T) {
	for _, key := range []string{EnvAppName, EnvBackend, EnvRemoteURL, EnvMaxKeyLength} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	path := filepath.Join(t.TempDir(), "cache.env")
	body := EnvAppName + "=shop\n" + EnvBackend + "=remote\n" + EnvRemoteURL + "=redis://cache:6379/1\n" + EnvMaxKeyLength + "=100\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := LoadEnvConfig(path)
	if err != nil {
		t.Fatalf("load env config: %v", err)
	}
	if cfg.AppName != "shop" || cfg.Backend != BackendRemote || cfg.RemoteURL != "redis://cache:6379/1" || cfg.MaxKeyLength != 100 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadEnvConfigEnvironmentWins(t *testing.T) {
	for _, key := range []string{EnvBackend, EnvRemoteURL, EnvMaxKeyLength} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv(EnvAppName, "fromenv")
	path := filepath.Join(t.TempDir(), "cache.env")
	if err := os.WriteFile(path, []byte(EnvAppName+"=fromfile\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := LoadEnvConfig(path)
	if err != nil {
		t.Fatalf("load env config: %v", err)
	}
	if cfg.AppName != "fromenv" {
		t.Fatalf("expected environment to win, got %q", cfg.AppName)
	}
	if cfg.Backend != BackendLocal {
		t.Fatalf("expected local default backend, got %s", cfg.Backend)
	}
}

func TestLoadEnvConfigMissingFileAndBadValues(t *testing.T) {
	t.Setenv(EnvBackend, "")
	t.Setenv(EnvMaxKeyLength, "")
	if _, err := LoadEnvConfig(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}

	t.Setenv(EnvMaxKeyLength, "lots")
	if _, err := LoadEnvConfig(filepath.Join(t.TempDir(), "absent.env")); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for bad integer, got %v", err)
	}

	t.Setenv(EnvMaxKeyLength, "")
	t.Setenv(EnvBackend, "disk")
	if _, err := LoadEnvConfig(filepath.Join(t.TempDir(), "absent.env")); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for unknown backend, got %v", err)
	}
}
