package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/location-crawler/internal/location"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, location.TypeStation, cfg.LocationType())
	assert.Equal(t, 100, cfg.Location.ChunkSize)
	assert.Equal(t, 1000, cfg.Location.MaxConsecutiveAbsent)
	assert.InDelta(t, 1.0, cfg.Location.MinSecondsBetweenRequests, 1e-9)
	assert.True(t, cfg.Location.Lock)
	assert.Equal(t, "html", cfg.Location.Mode)
	assert.Equal(t, "property-to-rent", cfg.Location.Channel)
	assert.Equal(t, "4", cfg.Location.Query["sort_type"])
	assert.Equal(t, "40.0", cfg.Location.Query["radius"])
	assert.Equal(t, []string{"stations"}, cfg.Sitemap.Types)
	assert.Equal(t, "name", cfg.Mappings.Key)
	assert.Equal(t, filepath.Join("data", "chunks"), cfg.ChunkDir())
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, location.Types(), cfg.ExportTypes())
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeConfig(t, `
data_dir: /srv/rightmove
logging:
  development: false
  level: warn
http:
  user_agent: test-agent
  timeout_seconds: 5
location:
  dir: /var/chunks
  location_type: region
  mode: api
  channel: property-for-sale
  min_seconds_between_requests: 0.5
  chunk_size: 500
  max_consecutive_absent: 0
  lock: false
sitemap:
  types: [stations, regions]
  overwrite: true
mappings:
  key: area
export:
  backend: gcs
  bucket: exports
  types: [station, OUTCODE]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, location.TypeRegion, cfg.LocationType())
	assert.Equal(t, 500, cfg.Location.ChunkSize)
	assert.Zero(t, cfg.Location.MaxConsecutiveAbsent)
	assert.False(t, cfg.Location.Lock)
	assert.Equal(t, "/var/chunks", cfg.ChunkDir())
	assert.Equal(t, filepath.Join("/srv/rightmove", "sitemaps"), cfg.SitemapDir())
	assert.Equal(t, filepath.Join("/srv/rightmove", "combined"), cfg.CombinedDir())
	assert.Equal(t, filepath.Join("/srv/rightmove", "mappings"), cfg.MappingsDir())
	assert.Equal(t, []string{"stations", "regions"}, cfg.Sitemap.Types)
	assert.True(t, cfg.Sitemap.Overwrite)
	assert.Equal(t, []location.Type{location.TypeStation, location.TypeOutcode}, cfg.ExportTypes())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LOCCRAWL_LOCATION_LOCATION_TYPE", "outcode")
	t.Setenv("LOCCRAWL_LOCATION_CHUNK_SIZE", "250")
	t.Setenv("LOCCRAWL_DATA_DIR", "/tmp/loc")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, location.TypeOutcode, cfg.LocationType())
	assert.Equal(t, 250, cfg.Location.ChunkSize)
	assert.Equal(t, filepath.Join("/tmp/loc", "export"), cfg.ExportDir())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"data dir":      func(c *Config) { c.DataDir = " " },
		"timeout":       func(c *Config) { c.HTTP.TimeoutSeconds = 0 },
		"type":          func(c *Config) { c.Location.Type = "city" },
		"mode":          func(c *Config) { c.Location.Mode = "browser" },
		"channel":       func(c *Config) { c.Location.Channel = "property-to-buy" },
		"delay":         func(c *Config) { c.Location.MinSecondsBetweenRequests = -1 },
		"chunk size":    func(c *Config) { c.Location.ChunkSize = 0 },
		"absent":        func(c *Config) { c.Location.MaxConsecutiveAbsent = -1 },
		"sitemap type":  func(c *Config) { c.Sitemap.Types = []string{"castles"} },
		"mapping key":   func(c *Config) { c.Mappings.Key = "postcode" },
		"backend":       func(c *Config) { c.Export.Backend = "s3" },
		"gcs bucket":    func(c *Config) { c.Export.Backend = "gcs" },
		"export types":  func(c *Config) { c.Export.Types = []string{"city"} },
		"runs need dsn": func(c *Config) { c.Export.RecordRuns = true },
	}
	for name, mutate := range cases {
		cfg := base
		cfg.Sitemap.Types = append([]string(nil), base.Sitemap.Types...)
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
	assert.NoError(t, base.Validate())
}
