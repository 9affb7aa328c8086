// Package config loads and validates the proxy's runtime configuration from
// environment variables. All settings have sensible defaults so the binary
// works out of the box for local development without any .env file.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the proxy process.
// Values are loaded once at startup via Load() and then treated as immutable.
type Config struct {
	// ListenAddr is the address the proxy's downstream listener binds to.
	ListenAddr string

	// AdminAddr is the gRPC listen address for the admin API
	// (internal/admin), used to list and drain clusters at runtime.
	AdminAddr string

	// StaticConfigPath is the path to the YAML cluster/route document
	// internal/configwatch loads and watches for changes.
	StaticConfigPath string

	// DefaultConnectTimeout is the dial timeout of the proxy's upstream
	// dialer. It applies to every upstream dial, alongside the cluster's
	// own connect timeout; whichever is shorter ends the attempt.
	DefaultConnectTimeout time.Duration

	// DefaultBufferLimit is the high-watermark buffer size (bytes) of each
	// accepted downstream connection.
	DefaultBufferLimit int

	// DrainTimeout bounds how long graceful shutdown waits for in-flight
	// streams to finish before the listener closes outstanding
	// connections outright.
	DrainTimeout time.Duration
}

// Load reads configuration from environment variables. Missing variables
// fall back to defaults suitable for local development. An error is
// returned only if a set variable fails to parse.
func Load() (*Config, error) {
	connectTimeout, err := getDuration("WAYFINDER_DEFAULT_CONNECT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	drainTimeout, err := getDuration("WAYFINDER_DRAIN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	bufferLimit, err := getInt("WAYFINDER_DEFAULT_BUFFER_LIMIT", 1<<20)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr:            getEnv("WAYFINDER_LISTEN_ADDR", ":10000"),
		AdminAddr:             getEnv("WAYFINDER_ADMIN_ADDR", ":9901"),
		StaticConfigPath:      getEnv("WAYFINDER_CONFIG_PATH", "./config/proxy.yaml"),
		DefaultConnectTimeout: connectTimeout,
		DefaultBufferLimit:    bufferLimit,
		DrainTimeout:          drainTimeout,
	}
	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is unset or empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
