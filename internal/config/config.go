// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/location-crawler/internal/export"
	"github.com/JakeFAU/location-crawler/internal/fetcher"
	"github.com/JakeFAU/location-crawler/internal/location"
	"github.com/JakeFAU/location-crawler/internal/sitemap"
	"github.com/JakeFAU/location-crawler/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. LOCCRAWL_LOCATION_LOCATION_TYPE.
const EnvPrefix = "LOCCRAWL"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Location LocationConfig `mapstructure:"location"`
	Sitemap  SitemapConfig  `mapstructure:"sitemap"`
	Combine  DirConfig      `mapstructure:"combine"`
	Mappings MappingsConfig `mapstructure:"mappings"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Export   ExportConfig   `mapstructure:"export"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LocationConfig governs the identifier crawl.
type LocationConfig struct {
	Dir                       string            `mapstructure:"dir"`
	Type                      string            `mapstructure:"location_type"`
	Mode                      string            `mapstructure:"mode"`
	Channel                   string            `mapstructure:"channel"`
	Query                     map[string]string `mapstructure:"query"`
	MinSecondsBetweenRequests float64           `mapstructure:"min_seconds_between_requests"`
	ChunkSize                 int               `mapstructure:"chunk_size"`
	MaxConsecutiveAbsent      int               `mapstructure:"max_consecutive_absent"`
	NameCacheSize             int               `mapstructure:"name_cache_size"`
	UseSitemapFilter          bool              `mapstructure:"use_sitemap_filter"`
	Lock                      bool              `mapstructure:"lock"`
}

// SitemapConfig controls the sitemap mirror.
type SitemapConfig struct {
	Dir       string   `mapstructure:"dir"`
	Types     []string `mapstructure:"types"`
	Overwrite bool     `mapstructure:"overwrite"`
	RootURL   string   `mapstructure:"root_url"`
}

// DirConfig names an output directory.
type DirConfig struct {
	Dir string `mapstructure:"dir"`
}

// MappingsConfig controls mapping reports.
type MappingsConfig struct {
	Dir string `mapstructure:"dir"`
	Key string `mapstructure:"key"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ExportConfig selects where reports are published.
type ExportConfig struct {
	Backend      string   `mapstructure:"backend"`
	Dir          string   `mapstructure:"dir"`
	Bucket       string   `mapstructure:"bucket"`
	Prefix       string   `mapstructure:"prefix"`
	Types        []string `mapstructure:"types"`
	PostgresDSN  string   `mapstructure:"postgres_dsn"`
	RecordsTable string   `mapstructure:"records_table"`
	RunsTable    string   `mapstructure:"runs_table"`
	RecordRuns   bool     `mapstructure:"record_runs"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("http.base_url", fetcher.DefaultBaseURL)
	v.SetDefault("http.user_agent", "location-crawler/0.1")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("location.dir", "chunks")
	v.SetDefault("location.location_type", string(location.TypeStation))
	v.SetDefault("location.mode", string(fetcher.ModeHTML))
	v.SetDefault("location.channel", string(fetcher.ChannelRent))
	v.SetDefault("location.query", fetcher.DefaultQuery())
	v.SetDefault("location.min_seconds_between_requests", 1.0)
	v.SetDefault("location.chunk_size", 100)
	v.SetDefault("location.max_consecutive_absent", 1000)
	v.SetDefault("location.name_cache_size", 256)
	v.SetDefault("location.use_sitemap_filter", true)
	v.SetDefault("location.lock", true)
	v.SetDefault("sitemap.dir", "sitemaps")
	v.SetDefault("sitemap.types", []string{"stations"})
	v.SetDefault("sitemap.overwrite", false)
	v.SetDefault("sitemap.root_url", sitemap.DefaultRootURL)
	v.SetDefault("combine.dir", "combined")
	v.SetDefault("mappings.dir", "mappings")
	v.SetDefault("mappings.key", string(export.KeyName))
	v.SetDefault("metrics.addr", "")
	v.SetDefault("export.backend", string(storage.BackendLocal))
	v.SetDefault("export.dir", "export")
	v.SetDefault("export.bucket", "")
	v.SetDefault("export.prefix", "")
	v.SetDefault("export.types", []string{})
	v.SetDefault("export.postgres_dsn", "")
	v.SetDefault("export.records_table", "locations")
	v.SetDefault("export.runs_table", "crawl_runs")
	v.SetDefault("export.record_runs", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if _, err := location.ParseType(c.Location.Type); err != nil {
		return fmt.Errorf("location.location_type: %w", err)
	}
	if _, err := fetcher.ParseMode(c.Location.Mode); err != nil {
		return fmt.Errorf("location.mode: %w", err)
	}
	switch fetcher.Channel(c.Location.Channel) {
	case fetcher.ChannelRent, fetcher.ChannelBuy:
	default:
		return fmt.Errorf("location.channel must be %q or %q", fetcher.ChannelRent, fetcher.ChannelBuy)
	}
	if c.Location.MinSecondsBetweenRequests < 0 {
		return fmt.Errorf("location.min_seconds_between_requests must be >= 0")
	}
	if c.Location.ChunkSize <= 0 {
		return fmt.Errorf("location.chunk_size must be > 0")
	}
	if c.Location.MaxConsecutiveAbsent < 0 {
		return fmt.Errorf("location.max_consecutive_absent must be >= 0")
	}
	for _, typ := range c.Sitemap.Types {
		if !slices.Contains(sitemap.Categories, typ) {
			return fmt.Errorf("sitemap.types: unknown category %q", typ)
		}
	}
	if _, err := export.ParseKey(c.Mappings.Key); err != nil {
		return fmt.Errorf("mappings.key: %w", err)
	}
	switch storage.Backend(c.Export.Backend) {
	case storage.BackendLocal, storage.BackendMemory:
	case storage.BackendGCS:
		if c.Export.Bucket == "" {
			return fmt.Errorf("export.bucket must be set when export.backend is gcs")
		}
	default:
		return fmt.Errorf("export.backend must be local, memory or gcs")
	}
	for _, typ := range c.Export.Types {
		if _, err := location.ParseType(typ); err != nil {
			return fmt.Errorf("export.types: %w", err)
		}
	}
	if c.Export.RecordRuns && c.Export.PostgresDSN == "" {
		return fmt.Errorf("export.postgres_dsn must be set when export.record_runs is enabled")
	}
	return nil
}

// LocationType returns the validated crawl type.
func (c Config) LocationType() location.Type {
	t, _ := location.ParseType(c.Location.Type)
	return t
}

// ExportTypes returns the types to combine and export; all types when unset.
func (c Config) ExportTypes() []location.Type {
	if len(c.Export.Types) == 0 {
		return location.Types()
	}
	out := make([]location.Type, 0, len(c.Export.Types))
	for _, raw := range c.Export.Types {
		t, _ := location.ParseType(raw)
		out = append(out, t)
	}
	return out
}

// HTTPTimeout converts the timeout to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Resolve makes dir absolute against data_dir unless it already is.
func (c Config) Resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.DataDir, dir)
}

// ChunkDir is where chunk files are written, one subdirectory per type.
func (c Config) ChunkDir() string { return c.Resolve(c.Location.Dir) }

// SitemapDir is where sitemaps are mirrored.
func (c Config) SitemapDir() string { return c.Resolve(c.Sitemap.Dir) }

// CombinedDir holds <TYPE>-all.json files.
func (c Config) CombinedDir() string { return c.Resolve(c.Combine.Dir) }

// MappingsDir holds mapping and duplicate reports.
func (c Config) MappingsDir() string { return c.Resolve(c.Mappings.Dir) }

// ExportDir is the local export root when export.backend is local.
func (c Config) ExportDir() string { return c.Resolve(c.Export.Dir) }
