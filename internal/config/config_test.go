package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "patrolwatch.yaml", `
log_level: debug
fleet:
  size: 6
simulation:
  tick_interval: 2s
  seed: 99
api:
  addr: ":9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 6, cfg.Fleet.Size)
	require.Equal(t, 2*time.Second, cfg.Simulation.TickInterval)
	require.Equal(t, uint64(99), cfg.Simulation.Seed)
	require.Equal(t, ":9090", cfg.API.Addr)
	require.Equal(t, 20, cfg.Alerts.FeedLimit)
	require.Equal(t, DefaultRegions(), cfg.Fleet.Regions)
	require.InDelta(t, 0.2, cfg.Simulation.TickAlertProbability, 1e-9)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "patrolwatch.json", `{"fleet":{"size":3},"alerts":{"feed_limit":5}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Fleet.Size)
	require.Equal(t, 5, cfg.Alerts.FeedLimit)
	require.Equal(t, 5*time.Second, cfg.Simulation.TickInterval)
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.yaml", "   \n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))

	bad := DefaultConfig()
	bad.Simulation.TickAlertProbability = 1.5
	require.Error(t, Validate(bad))

	bad = DefaultConfig()
	bad.Publish.Kafka.Enabled = true
	require.Error(t, Validate(bad))

	bad = DefaultConfig()
	bad.Roster.Enabled = true
	bad.Roster.Driver = "mysql"
	require.Error(t, Validate(bad))

	bad = DefaultConfig()
	bad.Fleet.Size = 1000
	require.Error(t, Validate(bad))
}

func TestManagerWithoutPathServesDefaults(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)
	require.Equal(t, 24, m.Get().Fleet.Size)
	needs, err := m.NeedsReload()
	require.NoError(t, err)
	require.False(t, needs)
}

func TestManagerReloadAfterWrite(t *testing.T) {
	path := writeFile(t, "patrolwatch.yaml", "fleet:\n  size: 4\n")
	m, err := NewManager(path)
	require.NoError(t, err)
	require.Equal(t, 4, m.Get().Fleet.Size)

	require.NoError(t, os.WriteFile(path, []byte("fleet:\n  size: 8\n"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	needs, err := m.NeedsReload()
	require.NoError(t, err)
	require.True(t, needs)
	cfg, err := m.Reload()
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Fleet.Size)
	require.Equal(t, 8, m.Get().Fleet.Size)
}

func TestSaveRoundTripsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.Fleet.Size = 12
	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 12, loaded.Fleet.Size)
	require.Equal(t, cfg.Simulation.TickInterval, loaded.Simulation.TickInterval)
}
