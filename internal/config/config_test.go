package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GAME_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 200*time.Millisecond, cfg.Movement.Interval())
	assert.Equal(t, 8, cfg.Movement.PendingLimit())
	assert.Equal(t, 12, cfg.Movement.Radius())
	assert.Equal(t, 7777, cfg.Server.GetTCPPort())
	assert.Equal(t, "memory", cfg.Storage.GetBackend())
	assert.Equal(t, uint16(1), cfg.World.SpawnMap)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	yml := `
server:
  tcp_port: 9000
movement:
  interval_ms: 150
  max_pending_moves: 4
storage:
  backend: redis
  redis_addr: "cache:6379"
world:
  spawn_map: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.GetTCPPort())
	assert.Equal(t, 150*time.Millisecond, cfg.Movement.Interval())
	assert.Equal(t, 4, cfg.Movement.PendingLimit())
	assert.Equal(t, "redis", cfg.Storage.GetBackend())
	assert.Equal(t, uint16(3), cfg.World.SpawnMap)
	// Не заданные в файле значения остаются дефолтными
	assert.Equal(t, "MOVEMENT", cfg.EventBus.Stream)
}

func TestEnvFallback(t *testing.T) {
	t.Setenv("GAME_KCP_PORT", "12000")
	t.Setenv("GAME_MOVE_INTERVAL_MS", "not-a-number")
	var s ServerConfig
	assert.Equal(t, 12000, s.GetKCPPort())

	var m MovementConfig
	assert.Equal(t, 200*time.Millisecond, m.Interval())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
