package app

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/config"
	"github.com/JakeFAU/location-crawler/internal/location"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load(writeConfig(t, "data_dir: "+t.TempDir()+"\n"))
	require.NoError(t, err)
	return cfg
}

func TestNewAppLoadsConfig(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, "data_dir: "+dataDir+"\nlocation:\n  location_type: REGION\n")

	a, err := NewApp(context.Background(), path)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, location.TypeRegion, a.Config().LocationType())
	assert.Equal(t, filepath.Join(dataDir, "chunks"), a.Config().ChunkDir())
	assert.NotNil(t, a.Logger())
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	path := writeConfig(t, "location:\n  mode: telepathy\n")

	_, err := NewApp(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location.mode")
}

func TestFilterDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Location.UseSitemapFilter = false
	a := newWithLogger(context.Background(), cfg, zap.NewNop())

	filter, err := a.Filter(location.TypeStation)
	require.NoError(t, err)
	assert.Nil(t, filter)
}

func TestFilterFromSitemaps(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(cfg.SitemapDir(), "stations")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	body := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/find.html?locationIdentifier=STATION%5E42</loc></url>
</urlset>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sitemap-stations-1.xml"), []byte(body), 0o600))
	a := newWithLogger(context.Background(), cfg, zap.NewNop())

	filter, err := a.Filter(location.TypeStation)
	require.NoError(t, err)
	require.NotNil(t, filter)
	assert.True(t, filter.Contains(42))
	assert.Equal(t, 1, filter.Len())
}

func TestFetcherRejectsUnknownMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Location.Mode = "nope"
	a := newWithLogger(context.Background(), cfg, zap.NewNop())

	_, err := a.Fetcher()
	require.Error(t, err)
}

func TestEngineWiring(t *testing.T) {
	cfg := testConfig(t)
	a := newWithLogger(context.Background(), cfg, zap.NewNop())
	defer a.Close()

	crawlCfg := a.CrawlConfig(location.TypeOutcode)
	assert.Equal(t, cfg.Location.ChunkSize, crawlCfg.ChunkSize)
	assert.Equal(t, cfg.Location.MaxConsecutiveAbsent, crawlCfg.MaxConsecutiveAbsent)
	assert.True(t, crawlCfg.Lock)

	engine, err := a.Engine(context.Background(), crawlCfg)
	require.NoError(t, err)
	assert.NotNil(t, engine)
	assert.DirExists(t, filepath.Join(cfg.ChunkDir(), string(location.TypeOutcode)))
}

func TestLocalWriterRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	a := newWithLogger(context.Background(), cfg, zap.NewNop())
	ctx := context.Background()

	w, err := a.LocalWriter(ctx, cfg.CombinedDir())
	require.NoError(t, err)
	recs := []location.Record{{Type: location.TypeRegion, Index: 1, Identifier: "REGION^1", Name: "Bath", Area: "Somerset"}}
	_, err = w.WriteCombined(ctx, location.TypeRegion, recs)
	require.NoError(t, err)

	got, err := w.ReadCombined(ctx, location.TypeRegion)
	require.NoError(t, err)
	assert.Equal(t, recs, got)
	assert.FileExists(t, filepath.Join(cfg.CombinedDir(), "REGION-all.json"))
}

func TestPublishWriterMemoryBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Backend = "memory"
	a := newWithLogger(context.Background(), cfg, zap.NewNop())
	defer a.Close()

	w, err := a.PublishWriter(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, w)
}

func TestRecordSinkWithoutDSN(t *testing.T) {
	a := newWithLogger(context.Background(), testConfig(t), zap.NewNop())

	store, err := a.RecordSink(context.Background())
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestSitemapDownloaderCreatesDir(t *testing.T) {
	cfg := testConfig(t)
	a := newWithLogger(context.Background(), cfg, zap.NewNop())

	d, err := a.SitemapDownloader(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, d)
	assert.DirExists(t, cfg.SitemapDir())
}

func TestCloseStopsMetricsServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := testConfig(t)
	cfg.Metrics.Addr = addr
	a := newWithLogger(context.Background(), cfg, zap.NewNop())

	closed := false
	a.closers = append(a.closers, func() error { closed = true; return nil })
	a.Close()
	assert.True(t, closed)
}
