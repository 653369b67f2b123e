// Package config provides env-driven runtime configuration for the chat
// server, with sanitized defaults for every setting.
package config

import (
	"os"
	"strconv"
)

// Config holds chat server configuration.
type Config struct {
	Addr            string // listen address, default ":4000"
	UsersFile       string // path to the static user directory JSON
	MaxHistory      int    // per-channel message history cap
	ReadBufferSize  int
	WriteBufferSize int
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Addr:            ":4000",
		UsersFile:       "users.json",
		MaxHistory:      500,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// FromEnv loads configuration from environment variables.
// Falls back to defaults for any missing or invalid values.
func FromEnv() *Config {
	cfg := Default()

	if addr := os.Getenv("CHAT_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if path := os.Getenv("CHAT_USERS_FILE"); path != "" {
		cfg.UsersFile = path
	}
	if v := os.Getenv("CHAT_MAX_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxHistory = n
		}
	}
	if v := os.Getenv("CHAT_READ_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ReadBufferSize = n
		}
	}
	if v := os.Getenv("CHAT_WRITE_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WriteBufferSize = n
		}
	}
	return cfg
}
