package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, DefaultArtifact, cfg.Artifact)
	assert.Equal(t, ".size", cfg.SizeSuffix)
	assert.Equal(t, 5*time.Second, cfg.Watchdog.Duration)
	assert.Equal(t, DisplayAuto, cfg.Display)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_NamedFileMustExist(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "typo.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_NegativeDurationRejected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "loader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_url: http://localhost/\nwatchdog: -1s\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, -time.Second, cfg.Watchdog.Duration)

	var verr ValidationError
	require.ErrorAs(t, cfg.Validate(), &verr)
	assert.Equal(t, "watchdog", verr.Field)
}

func TestLoad_OverridesAndDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "loader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
page_url: https://example.com/app/
artifact: fenestra.wasm
watchdog: 2s
overshoot_tolerance: 512
engine:
  memory_limit_pages: 1024
log:
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/app/", cfg.PageURL)
	assert.Equal(t, "fenestra.wasm", cfg.Artifact)
	assert.Equal(t, 2*time.Second, cfg.Watchdog.Duration)
	assert.Equal(t, int64(512), cfg.OvershootTolerance)
	assert.Equal(t, uint32(1024), cfg.Engine.MemoryLimitPages)
	assert.Equal(t, "json", cfg.Log.Format)

	// Untouched fields keep defaults.
	assert.Equal(t, ".size", cfg.SizeSuffix)
	assert.Equal(t, DefaultSizeTimeout, cfg.SizeTimeout.Duration)
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "loader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("watchdog: soon\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestDuration_RoundTrip(t *testing.T) {
	t.Parallel()

	out, err := yaml.Marshal(struct {
		D Duration `yaml:"d"`
	}{D: Duration{90 * time.Second}})
	require.NoError(t, err)
	assert.Equal(t, "d: 1m30s\n", string(out))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := DefaultConfig()
	valid.PageURL = "http://localhost:8080/"

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing page", mutate: func(c *Config) { c.PageURL = "" }, field: "page_url"},
		{name: "bad scheme", mutate: func(c *Config) { c.PageURL = "file:///tmp/app" }, field: "page_url"},
		{name: "missing artifact", mutate: func(c *Config) { c.Artifact = "" }, field: "artifact"},
		{name: "zero watchdog", mutate: func(c *Config) { c.Watchdog = Duration{} }, field: "watchdog"},
		{name: "negative watchdog", mutate: func(c *Config) { c.Watchdog = Duration{-time.Second} }, field: "watchdog"},
		{name: "negative size timeout", mutate: func(c *Config) { c.SizeTimeout = Duration{-time.Second} }, field: "size_timeout"},
		{name: "negative download timeout", mutate: func(c *Config) { c.DownloadTimeout = Duration{-time.Second} }, field: "download_timeout"},
		{name: "zero timeouts disable them", mutate: func(c *Config) { c.SizeTimeout, c.DownloadTimeout = Duration{}, Duration{} }},
		{name: "negative tolerance", mutate: func(c *Config) { c.OvershootTolerance = -1 }, field: "overshoot_tolerance"},
		{name: "unknown display", mutate: func(c *Config) { c.Display = "gui" }, field: "display"},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }, field: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestPage_AppliesLang(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PageURL = "https://example.com/app/?theme=dark"

	u, err := cfg.Page()
	require.NoError(t, err)
	assert.False(t, u.Query().Has("lang"))

	cfg.Lang = "de"
	u, err = cfg.Page()
	require.NoError(t, err)
	assert.Equal(t, "de", u.Query().Get("lang"))
	assert.Equal(t, "dark", u.Query().Get("theme"))
}
