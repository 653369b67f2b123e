package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":4000", cfg.Addr)
	assert.Equal(t, "users.json", cfg.UsersFile)
	assert.Equal(t, 500, cfg.MaxHistory)
	assert.Equal(t, 1024, cfg.ReadBufferSize)
	assert.Equal(t, 1024, cfg.WriteBufferSize)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CHAT_ADDR", ":9000")
	t.Setenv("CHAT_USERS_FILE", "/etc/chat/users.json")
	t.Setenv("CHAT_MAX_HISTORY", "50")

	cfg := FromEnv()
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "/etc/chat/users.json", cfg.UsersFile)
	assert.Equal(t, 50, cfg.MaxHistory)
	assert.Equal(t, 1024, cfg.ReadBufferSize) // untouched default
}

func TestFromEnvInvalidValues(t *testing.T) {
	t.Setenv("CHAT_MAX_HISTORY", "not-a-number")
	t.Setenv("CHAT_READ_BUFFER", "-5")

	cfg := FromEnv()
	assert.Equal(t, 500, cfg.MaxHistory)
	assert.Equal(t, 1024, cfg.ReadBufferSize)
}
