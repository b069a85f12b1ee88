// Package sitemap downloads the site's sitemaps and derives known-index
// filters from them.
package sitemap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/location"
)

const urlLocXPath = "//*[local-name()='url']/*[local-name()='loc']"

// LoadFilter collects every index of typ referenced by the sitemaps stored in
// <dir>/<category>/*.xml. It returns a nil filter, meaning "admit everything",
// when the category directory is missing or yields no indices.
func LoadFilter(dir string, typ location.Type, logger *zap.Logger) (*location.Filter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	categoryDir := filepath.Join(dir, typ.SitemapCategory())
	info, err := os.Stat(categoryDir)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("no sitemaps for type, scanning without filter", zap.String("dir", categoryDir))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat sitemap dir %s: %w", categoryDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sitemap path %s is not a directory", categoryDir)
	}

	paths, err := filepath.Glob(filepath.Join(categoryDir, "*.xml"))
	if err != nil {
		return nil, fmt.Errorf("glob sitemaps: %w", err)
	}
	sort.Strings(paths)

	pattern := regexp.MustCompile(regexp.QuoteMeta(string(typ)) + `%5E(\d+)`)
	var indices []int
	for _, path := range paths {
		found, err := indicesFromFile(path, pattern)
		if err != nil {
			return nil, err
		}
		logger.Debug("sitemap parsed", zap.String("path", path), zap.Int("indices", len(found)))
		indices = append(indices, found...)
	}
	if len(indices) == 0 {
		logger.Info("sitemaps list no indices, scanning without filter", zap.String("dir", categoryDir))
		return nil, nil
	}
	filter := location.NewFilter(indices...)
	logger.Info("known-index filter loaded",
		zap.String("type", string(typ)),
		zap.Int("files", len(paths)),
		zap.Int("indices", filter.Len()),
	)
	return filter, nil
}

func indicesFromFile(path string, pattern *regexp.Regexp) ([]int, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from a glob under the configured sitemap dir.
	if err != nil {
		return nil, fmt.Errorf("open sitemap %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	doc, err := xmlquery.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", path, err)
	}
	return indicesFromDoc(doc, pattern, path)
}

func indicesFromDoc(doc *xmlquery.Node, pattern *regexp.Regexp, source string) ([]int, error) {
	locs, err := xmlquery.QueryAll(doc, urlLocXPath)
	if err != nil {
		return nil, fmt.Errorf("query sitemap %s: %w", source, err)
	}
	var out []int
	for _, loc := range locs {
		m := pattern.FindStringSubmatch(strings.TrimSpace(loc.InnerText()))
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, idx)
	}
	return out, nil
}
