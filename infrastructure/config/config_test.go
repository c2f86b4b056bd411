package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 1024, cfg.ReadBufferSize)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("WS_READ_BUFFER_SIZE", "4096")
	t.Setenv("ENABLE_METRICS", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddress)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 4096, cfg.ReadBufferSize)
	assert.False(t, cfg.EnableMetrics)
}

func writeLimitsFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadLimits(t *testing.T) {
	path := writeLimitsFile(t, t.TempDir(), `
opBurst: 40
opRefillPerSecond: 20
presenceTTLSeconds: 45
metadata:
  version: "2.1.0"
`)

	limits, err := LoadLimits(path)
	require.NoError(t, err)

	assert.Equal(t, float64(40), limits.OpBurst)
	assert.Equal(t, float64(20), limits.OpRefillPerSecond)
	assert.Equal(t, 45*time.Second, limits.PresenceTTL())
	assert.Equal(t, "2.1.0", limits.Metadata.Version)
}

func TestLoadLimits_RejectsNonPositiveRates(t *testing.T) {
	path := writeLimitsFile(t, t.TempDir(), `
opBurst: 0
opRefillPerSecond: 20
presenceTTLSeconds: 30
`)

	_, err := LoadLimits(path)
	assert.Error(t, err)
}

func TestLimitsWatcher_ReloadsValidRevision(t *testing.T) {
	dir := t.TempDir()
	path := writeLimitsFile(t, dir, "opBurst: 10\nopRefillPerSecond: 5\npresenceTTLSeconds: 30\n")

	watcher, err := NewLimitsWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer watcher.Stop()

	changed := make(chan *Limits, 1)
	watcher.OnChange(func(l *Limits) { changed <- l })
	watcher.Start()

	require.NoError(t, os.WriteFile(path, []byte("opBurst: 80\nopRefillPerSecond: 40\npresenceTTLSeconds: 30\n"), 0o644))

	select {
	case next := <-changed:
		assert.Equal(t, float64(80), next.OpBurst)
	case <-time.After(5 * time.Second):
		t.Fatal("limits change never observed")
	}

	assert.Equal(t, float64(80), watcher.GetCurrent().OpBurst)
}

func TestLimitsWatcher_KeepsCurrentOnInvalidRevision(t *testing.T) {
	dir := t.TempDir()
	path := writeLimitsFile(t, dir, "opBurst: 10\nopRefillPerSecond: 5\npresenceTTLSeconds: 30\n")

	watcher, err := NewLimitsWatcher(path, zap.NewNop())
	require.NoError(t, err)
	defer watcher.Stop()
	watcher.Start()

	require.NoError(t, os.WriteFile(path, []byte("opBurst: -1\n"), 0o644))

	// Give the debounce a chance to fire, then confirm nothing changed.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, float64(10), watcher.GetCurrent().OpBurst)
}
