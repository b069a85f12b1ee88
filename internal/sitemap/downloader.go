package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultRootURL is the site's sitemap index.
const DefaultRootURL = "https://www.rightmove.co.uk/sitemap.xml"

const sitemapLocXPath = "//*[local-name()='sitemap']/*[local-name()='loc']"

var sitemapName = regexp.MustCompile(`^sitemap-(\w+)-(.+)\.xml$`)

// Categories published in the sitemap index.
var Categories = []string{"properties", "stations", "static", "overseas", "agents", "outcodes", "regions"}

// BlobStore is where sitemap files are kept.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	ReadObject(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Gate delays each request.
type Gate interface {
	Wait(ctx context.Context) error
}

// DownloaderConfig controls which sitemaps are fetched.
type DownloaderConfig struct {
	RootURL    string
	Categories []string
	Overwrite  bool
	UserAgent  string
	Timeout    time.Duration
}

// Result summarises a download pass.
type Result struct {
	Downloaded []string
	Skipped    int
}

// Downloader mirrors the sitemap index and the category sitemaps it lists.
type Downloader struct {
	cfg    DownloaderConfig
	client *resty.Client
	store  BlobStore
	gate   Gate
	logger *zap.Logger
}

// NewDownloader builds a Downloader. gate may be nil.
func NewDownloader(cfg DownloaderConfig, store BlobStore, gate Gate, logger *zap.Logger) (*Downloader, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.RootURL == "" {
		cfg.RootURL = DefaultRootURL
	}
	for _, c := range cfg.Categories {
		if !knownCategory(c) {
			return nil, fmt.Errorf("unknown sitemap category %q", c)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Downloader{cfg: cfg, client: client, store: store, gate: gate, logger: logger.Named("sitemap")}, nil
}

// Run fetches (or reuses) the root index, then downloads every wanted
// category sitemap not already stored.
func (d *Downloader) Run(ctx context.Context) (Result, error) {
	var result Result
	root, err := d.rootIndex(ctx)
	if err != nil {
		return result, err
	}
	doc, err := xmlquery.Parse(bytes.NewReader(root))
	if err != nil {
		return result, fmt.Errorf("parse root sitemap: %w", err)
	}
	locs, err := xmlquery.QueryAll(doc, sitemapLocXPath)
	if err != nil {
		return result, fmt.Errorf("query root sitemap: %w", err)
	}

	wanted := make(map[string]bool, len(d.cfg.Categories))
	for _, c := range d.cfg.Categories {
		wanted[c] = true
	}
	seen := make(map[string]bool)
	for _, loc := range locs {
		rawURL := strings.TrimSpace(loc.InnerText())
		if rawURL == "" {
			return result, fmt.Errorf("root sitemap lists an empty loc")
		}
		name, err := fileName(rawURL)
		if err != nil {
			return result, err
		}
		m := sitemapName.FindStringSubmatch(name)
		if m == nil {
			d.logger.Warn("unexpected sitemap name", zap.String("name", name))
			continue
		}
		category := m[1]
		if !wanted[category] {
			d.logger.Debug("skipping unwanted sitemap", zap.String("category", category), zap.String("name", name))
			continue
		}
		if seen[rawURL] {
			continue
		}
		seen[rawURL] = true

		dest := category + "/" + name
		if !d.cfg.Overwrite {
			exists, err := d.store.Exists(ctx, dest)
			if err != nil {
				return result, fmt.Errorf("check %s: %w", dest, err)
			}
			if exists {
				result.Skipped++
				continue
			}
		}
		body, err := d.get(ctx, rawURL)
		if err != nil {
			return result, err
		}
		if _, err := d.store.PutObject(ctx, dest, "application/xml", bytes.NewReader(body)); err != nil {
			return result, fmt.Errorf("store %s: %w", dest, err)
		}
		d.logger.Info("sitemap downloaded", zap.String("url", rawURL), zap.String("path", dest))
		result.Downloaded = append(result.Downloaded, dest)
	}
	d.logger.Info("sitemaps synced", zap.Int("downloaded", len(result.Downloaded)), zap.Int("skipped", result.Skipped))
	return result, nil
}

func (d *Downloader) rootIndex(ctx context.Context) ([]byte, error) {
	name, err := fileName(d.cfg.RootURL)
	if err != nil {
		return nil, err
	}
	if !d.cfg.Overwrite {
		exists, err := d.store.Exists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", name, err)
		}
		if exists {
			d.logger.Info("root sitemap already downloaded", zap.String("path", name))
			data, err := d.store.ReadObject(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			return data, nil
		}
	}
	body, err := d.get(ctx, d.cfg.RootURL)
	if err != nil {
		return nil, err
	}
	if _, err := d.store.PutObject(ctx, name, "application/xml", bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}
	return body, nil
}

func (d *Downloader) get(ctx context.Context, rawURL string) ([]byte, error) {
	if d.gate != nil {
		if err := d.gate.Wait(ctx); err != nil {
			return nil, err
		}
	}
	resp, err := d.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("get %s: unexpected status %d", rawURL, resp.StatusCode())
	}
	return resp.Body(), nil
}

func fileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse sitemap url %q: %w", rawURL, err)
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return "", fmt.Errorf("sitemap url %q has no path", rawURL)
	}
	return name, nil
}

func knownCategory(c string) bool {
	return slices.Contains(Categories, c)
}
