// control/config_test.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultMapFile, cfg.MapFile)
	assert.False(t, cfg.Opportunist)
	assert.Equal(t, time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, 0, cfg.MaxAttempts)
	assert.Equal(t, DefaultMaxThreads, cfg.MaxThreads)
	assert.False(t, cfg.Rebind)
	assert.Equal(t, logiface.LevelInformational, cfg.Level())
}

func TestLoadConfigRoleSelector(t *testing.T) {
	for v, want := range map[string]bool{
		"1":      true,
		"2":      true,
		"-1":     true,
		"7abc":   true,
		"0":      false,
		"abc":    false,
		"  ":     false,
		"yes":    false,
		"+0":     false,
		"000010": true,
	} {
		cfg, err := LoadConfig(envOf(map[string]string{EnvOpportunist: v}))
		require.NoError(t, err, v)
		assert.Equal(t, want, cfg.Opportunist, "MOC_OPPORTUNIST=%q", v)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	cfg, err := LoadConfig(envOf(map[string]string{
		EnvMapFile:       "/dev/shm/table.dat",
		EnvRetryInterval: "250us",
		EnvMaxAttempts:   "10",
		EnvMaxThreads:    "8",
		EnvLogLevel:      "debug",
		EnvRebind:        "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/dev/shm/table.dat", cfg.MapFile)
	assert.Equal(t, 250*time.Microsecond, cfg.RetryInterval)
	assert.Equal(t, 10, cfg.MaxAttempts)
	assert.Equal(t, 8, cfg.MaxThreads)
	assert.Equal(t, logiface.LevelDebug, cfg.Level())
	assert.True(t, cfg.Rebind)
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mapfile: /tmp/from-yaml.dat
opportunist: true
retryInterval: 5ms
maxThreads: 16
logLevel: warning
`), 0o644))

	cfg, err := LoadConfig(envOf(map[string]string{
		EnvConfigFile: path,
		EnvMaxThreads: "4",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-yaml.dat", cfg.MapFile)
	assert.True(t, cfg.Opportunist)
	assert.Equal(t, 5*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, 4, cfg.MaxThreads)
	assert.Equal(t, logiface.LevelWarning, cfg.Level())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(envOf(map[string]string{EnvRetryInterval: "soon"}))
	assert.Error(t, err)

	_, err = LoadConfig(envOf(map[string]string{EnvMaxThreads: "0"}))
	assert.ErrorContains(t, err, "maxThreads")

	_, err = LoadConfig(envOf(map[string]string{EnvLogLevel: "chatty"}))
	assert.ErrorContains(t, err, "unknown log level")

	_, err = LoadConfig(envOf(map[string]string{EnvConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}))
	assert.Error(t, err)
}

func TestValidateAggregates(t *testing.T) {
	cfg := &Config{RetryInterval: -1, MaxAttempts: -1}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"mapfile", "retryInterval", "maxAttempts", "maxThreads"} {
		assert.ErrorContains(t, err, want)
	}
	assert.NoError(t, (*Config)(nil).Validate())
}

func TestConfigStoreReload(t *testing.T) {
	store := NewConfigStore()
	calls := 0
	store.OnReload(func() { calls++ })

	r := NewReloader(store, envOf(map[string]string{EnvRetryInterval: "3ms"}))
	cfg, err := r.Reload()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, 1, calls)

	v, ok := store.Get("retryInterval")
	require.True(t, ok)
	assert.Equal(t, 3*time.Millisecond, v)

	bad := NewReloader(store, envOf(map[string]string{EnvRetryInterval: "nope"}))
	_, err = bad.Reload()
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestMetricsCounters(t *testing.T) {
	mr := NewMetricsRegistry()
	mr.Add("claims", 2)
	mr.Add("claims", 3)
	mr.Set("role", "primary")

	snap := mr.GetSnapshot()
	assert.Equal(t, int64(5), snap["claims"])
	assert.Equal(t, "primary", snap["role"])
	assert.False(t, mr.Updated().IsZero())

	var nilRegistry *MetricsRegistry
	assert.NotPanics(t, func() { nilRegistry.Add("x", 1) })
}
