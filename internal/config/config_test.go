package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Empty(t, cfg.HostRoot, "host root starts unconfigured")
	assert.Equal(t, "DIGEST:", cfg.AnchorToken)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceWindow)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.NotEmpty(t, cfg.HashMirrors)
	assert.NotEmpty(t, cfg.GameInfoMirrors)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "vpklink.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
host_root: /opt/host
package_file: custom/pack.vpk
retry_attempts: 5
debounce_window: 250ms
`), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/opt/host", cfg.HostRoot)
	assert.Equal(t, "custom/pack.vpk", cfg.PackageFile)
	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.DebounceWindow)
	// Unset keys keep their defaults.
	assert.Equal(t, "DIGEST:", cfg.AnchorToken)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty anchor", func(c *Config) { c.AnchorToken = "" }},
		{"empty marker", func(c *Config) { c.GameInfoMarker = "" }},
		{"no hash mirrors", func(c *Config) { c.HashMirrors = nil }},
		{"no gameinfo mirrors", func(c *Config) { c.GameInfoMirrors = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPathResolution(t *testing.T) {
	cfg := Default()
	cfg.HostRoot = "/opt/host"

	assert.Equal(t, filepath.Join("/opt/host", ".vpklink-hash"), cfg.HashRecordPath())
	assert.Equal(t, filepath.Join("/opt/host", ".vpklink-baseline.json"), cfg.BaselinePath())

	cfg.BaselineFile = "/var/cache/vpklink/baseline.json"
	assert.Equal(t, "/var/cache/vpklink/baseline.json", cfg.BaselinePath())

	watched := cfg.WatchedPaths()
	require.Len(t, watched, 4)
	assert.Contains(t, watched, filepath.Join("/opt/host", "gameinfo.txt"))
	assert.Contains(t, watched, filepath.Join("/opt/host", "vpklink", "pak01_dir.vpk"))
}
